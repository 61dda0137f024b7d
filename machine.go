package kappale

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

type (
	// Machine is one processing unit of the song. The engine creates one node
	// per machine when playback starts. Params lists the parameters the
	// machine accepts, in the order they are addressed by index on the engine
	// boundary. Values holds the initial value of a parameter; a parameter
	// without an entry starts from its Default.
	Machine struct {
		ID   string      `yaml:"id" json:"id"`
		Kind string      `yaml:"kind" json:"kind"`
		Type MachineType `yaml:"type" json:"type"`

		// Feedback tells that the machine can sit on a cycle of wires, e.g. a
		// delay line feeding back to its own input.
		Feedback bool `yaml:"feedback,omitempty" json:"feedback,omitempty"`

		Params []Parameter        `yaml:"params,omitempty" json:"params,omitempty"`
		Values map[string]float64 `yaml:"values,omitempty,flow" json:"values,omitempty"`
	}

	// Parameter documents one parameter of a machine.
	Parameter struct {
		Name    string    `yaml:"name" json:"name"`
		Kind    ParamKind `yaml:"kind" json:"kind"`
		Min     float64   `yaml:"min" json:"min"`
		Max     float64   `yaml:"max" json:"max"`
		Default float64   `yaml:"default" json:"default"`
		Choices []string  `yaml:"choices,omitempty,flow" json:"choices,omitempty"`
	}

	// MachineType tells where the machine sits in the signal flow. Generators
	// only produce signal, effects process the signal of their inputs and the
	// sink is the final output of the song.
	MachineType int

	// ParamKind is the value type of a parameter.
	ParamKind int
)

const (
	MachineTypeUnknown MachineType = iota - 1
	Generator
	Effect
	Sink
)

const (
	ParamKindUnknown ParamKind = iota - 1
	Numeric                    // any finite value within [Min, Max]
	Enum                       // index into Choices
	Trigger                    // integer within [Min, Max], e.g. a note
)

var machineTypeNames = [...]string{"generator", "effect", "sink"}
var paramKindNames = [...]string{"numeric", "enum", "trigger"}

func (t MachineType) String() string {
	if t < 0 || int(t) >= len(machineTypeNames) {
		return "unknown"
	}
	return machineTypeNames[t]
}

func (t MachineType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(machineTypeNames) {
		return nil, fmt.Errorf("invalid machine type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText never fails: names written by newer versions decode to
// MachineTypeUnknown so that loaders can skip the machine with a warning.
func (t *MachineType) UnmarshalText(text []byte) error {
	*t = MachineTypeUnknown
	if i := slices.Index(machineTypeNames[:], string(text)); i >= 0 {
		*t = MachineType(i)
	}
	return nil
}

func (k ParamKind) String() string {
	if k < 0 || int(k) >= len(paramKindNames) {
		return "unknown"
	}
	return paramKindNames[k]
}

func (k ParamKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(paramKindNames) {
		return nil, fmt.Errorf("invalid parameter kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ParamKind) UnmarshalText(text []byte) error {
	*k = ParamKindUnknown
	if i := slices.Index(paramKindNames[:], string(text)); i >= 0 {
		*k = ParamKind(i)
	}
	return nil
}

// Copy makes a deep copy of the machine.
func (m *Machine) Copy() Machine {
	params := make([]Parameter, 0, len(m.Params))
	for _, p := range m.Params {
		params = append(params, p.Copy())
	}
	var values map[string]float64
	if len(m.Values) > 0 {
		values = make(map[string]float64, len(m.Values))
		for k, v := range m.Values {
			values[k] = v
		}
	}
	return Machine{ID: m.ID, Kind: m.Kind, Type: m.Type, Feedback: m.Feedback, Params: clone(params), Values: values}
}

func (p *Parameter) Copy() Parameter {
	return Parameter{Name: p.Name, Kind: p.Kind, Min: p.Min, Max: p.Max, Default: p.Default, Choices: clone(p.Choices)}
}

// Param returns the position and the declaration of the named parameter.
func (m *Machine) Param(name string) (index int, param Parameter, ok bool) {
	for i, p := range m.Params {
		if p.Name == name {
			return i, p, true
		}
	}
	return -1, Parameter{}, false
}

// Value returns the initial value of the named parameter: the value set in
// Values or the default of the parameter.
func (m *Machine) Value(name string) float64 {
	if v, ok := m.Values[name]; ok {
		return v
	}
	if _, p, ok := m.Param(name); ok {
		return p.Default
	}
	return 0
}

// InitialValues returns the initial values of all parameters, in parameter
// order.
func (m *Machine) InitialValues() []float64 {
	ret := make([]float64, len(m.Params))
	for i, p := range m.Params {
		ret[i] = m.Value(p.Name)
	}
	return ret
}

// Check returns an error if v is not a legal value for the parameter.
func (p *Parameter) Check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("value is not a finite number")
	}
	switch p.Kind {
	case Numeric:
		if v < p.Min || v > p.Max {
			return fmt.Errorf("value %v outside [%v, %v]", v, p.Min, p.Max)
		}
	case Enum:
		if v != math.Trunc(v) || v < 0 || int(v) >= len(p.Choices) {
			return fmt.Errorf("value %v is not a choice index below %d", v, len(p.Choices))
		}
	case Trigger:
		if v != math.Trunc(v) || v < p.Min || v > p.Max {
			return fmt.Errorf("trigger value %v is not an integer within [%v, %v]", v, p.Min, p.Max)
		}
	default:
		return fmt.Errorf("parameter kind %v cannot hold values", p.Kind)
	}
	return nil
}

func (p *Parameter) validate() error {
	if p.Name == "" {
		return errors.New("parameter has no name")
	}
	switch p.Kind {
	case Numeric, Trigger:
		if math.IsNaN(p.Min) || math.IsNaN(p.Max) || p.Min > p.Max {
			return fmt.Errorf("parameter %q has an empty range [%v, %v]", p.Name, p.Min, p.Max)
		}
	case Enum:
		if len(p.Choices) == 0 {
			return fmt.Errorf("enum parameter %q has no choices", p.Name)
		}
	default:
		return fmt.Errorf("parameter %q has unknown kind", p.Name)
	}
	if err := p.Check(p.Default); err != nil {
		return fmt.Errorf("default of parameter %q: %w", p.Name, err)
	}
	return nil
}

// validate checks the machine in isolation, without looking at the rest of
// the song.
func (m *Machine) validate() error {
	subject := machineSubject(m.ID)
	if m.ID == "" {
		return invalid(InvariantMachineDecl, subject, "machine has no id")
	}
	if m.Type < Generator || m.Type > Sink {
		return invalid(InvariantMachineDecl, subject, "unknown machine type")
	}
	for i := range m.Params {
		if err := m.Params[i].validate(); err != nil {
			return invalid(InvariantParamDecl, subject, "%v", err)
		}
		for j := 0; j < i; j++ {
			if m.Params[j].Name == m.Params[i].Name {
				return invalid(InvariantParamDecl, subject, "parameter %q declared twice", m.Params[i].Name)
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Values)) {
		v := m.Values[name]
		_, p, ok := m.Param(name)
		if !ok {
			return invalid(InvariantParamRef, subject, "value for undeclared parameter %q", name)
		}
		if err := p.Check(v); err != nil {
			return invalid(InvariantParamValue, subject, "parameter %q: %v", name, err)
		}
	}
	return nil
}

func clone[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return slices.Clone(s)
}
