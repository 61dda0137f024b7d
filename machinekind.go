package kappale

import "fmt"

// MachineKind documents one built-in machine kind: where it sits in the
// signal flow and what parameters it takes.
type MachineKind struct {
	Type     MachineType
	Feedback bool
	Params   []Parameter
}

var notes = Parameter{Name: "note", Kind: Trigger, Min: 0, Max: 127, Default: 0}

// MachineKinds documents all the built-in machine kinds. Songs may also hold
// machines of kinds not listed here; those carry their own parameter
// declarations.
var MachineKinds = map[string]MachineKind{
	"oscillator": {Type: Generator, Params: []Parameter{
		notes,
		{Name: "waveform", Kind: Enum, Choices: []string{"sine", "saw", "square", "triangle"}},
		{Name: "detune", Kind: Numeric, Min: -1, Max: 1},
		{Name: "attack", Kind: Numeric, Min: 0, Max: 10, Default: 0.01},
		{Name: "release", Kind: Numeric, Min: 0, Max: 10, Default: 0.2},
		{Name: "volume", Kind: Numeric, Min: 0, Max: 1, Default: 0.8}}},
	"noise": {Type: Generator, Params: []Parameter{
		notes,
		{Name: "color", Kind: Enum, Choices: []string{"white", "pink", "brown"}},
		{Name: "release", Kind: Numeric, Min: 0, Max: 10, Default: 0.1},
		{Name: "volume", Kind: Numeric, Min: 0, Max: 1, Default: 0.5}}},
	"filter": {Type: Effect, Params: []Parameter{
		{Name: "mode", Kind: Enum, Choices: []string{"lowpass", "bandpass", "highpass"}},
		{Name: "cutoff", Kind: Numeric, Min: 20, Max: 20000, Default: 8000},
		{Name: "resonance", Kind: Numeric, Min: 0, Max: 1, Default: 0.1}}},
	"delay": {Type: Effect, Feedback: true, Params: []Parameter{
		{Name: "time", Kind: Numeric, Min: 1, Max: 2000, Default: 250},
		{Name: "feedback", Kind: Numeric, Min: 0, Max: 0.99, Default: 0.4},
		{Name: "dry", Kind: Numeric, Min: 0, Max: 1, Default: 1},
		{Name: "wet", Kind: Numeric, Min: 0, Max: 1, Default: 0.3}}},
	"distortion": {Type: Effect, Params: []Parameter{
		{Name: "drive", Kind: Numeric, Min: 0, Max: 1, Default: 0.5},
		{Name: "volume", Kind: Numeric, Min: 0, Max: 1, Default: 0.7}}},
	"amplifier": {Type: Effect, Params: []Parameter{
		{Name: "gain", Kind: Numeric, Min: 0, Max: 4, Default: 1}}},
	"compressor": {Type: Effect, Params: []Parameter{
		{Name: "threshold", Kind: Numeric, Min: -60, Max: 0, Default: -12},
		{Name: "ratio", Kind: Numeric, Min: 1, Max: 20, Default: 4},
		{Name: "attack", Kind: Numeric, Min: 0, Max: 1, Default: 0.01},
		{Name: "release", Kind: Numeric, Min: 0, Max: 2, Default: 0.1}}},
	"master": {Type: Sink, Params: []Parameter{
		{Name: "volume", Kind: Numeric, Min: 0, Max: 1, Default: 0.8},
		{Name: "mute", Kind: Enum, Choices: []string{"off", "on"}}}},
}

// NewMachine returns a machine of a built-in kind with default values.
func NewMachine(id, kind string) (Machine, error) {
	k, ok := MachineKinds[kind]
	if !ok {
		return Machine{}, fmt.Errorf("unknown machine kind %q", kind)
	}
	m := Machine{ID: id, Kind: kind, Type: k.Type, Feedback: k.Feedback, Params: k.Params}
	return m.Copy(), nil
}
