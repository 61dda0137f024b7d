package kappale

import "fmt"

// NewDemoSong returns a small complete song: an oscillator through a filter
// and a feedback delay into the master, with a melody and a filter sweep on
// two tracks.
func NewDemoSong() (*Song, error) {
	s := NewSong()
	meta := s.Meta()
	meta.Name = "Demo"
	s.SetMeta(meta)
	for _, m := range [][2]string{{"osc", "oscillator"}, {"flt", "filter"}, {"echo", "delay"}, {"master", "master"}} {
		machine, err := NewMachine(m[0], m[1])
		if err != nil {
			return nil, err
		}
		if err := s.AddMachine(machine); err != nil {
			return nil, fmt.Errorf("AddMachine failed: %w", err)
		}
	}
	feedback := NewWire("echo", "echo")
	feedback.Gain = 0.5
	for _, w := range []Wire{NewWire("osc", "flt"), NewWire("flt", "echo"), feedback, NewWire("echo", "master")} {
		if err := s.Connect(w); err != nil {
			return nil, fmt.Errorf("Connect failed: %w", err)
		}
	}
	patterns := []Pattern{
		{ID: "lead", Machine: "osc", Length: 8, Events: []Event{
			{Tick: 0, Param: "note", Value: 60},
			{Tick: 0, Param: "volume", Value: 0.8},
			{Tick: 2, Param: "note", Value: 64},
			{Tick: 4, Param: "note", Value: 67},
			{Tick: 6, Param: "waveform", Value: 1},
		}},
		{ID: "sweep", Machine: "flt", Length: 4, Events: []Event{
			{Tick: 0, Param: "cutoff", Value: 2000},
			{Tick: 2, Param: "cutoff", Value: 4000},
		}},
	}
	for _, p := range patterns {
		if err := s.AddPattern(p); err != nil {
			return nil, fmt.Errorf("AddPattern failed: %w", err)
		}
	}
	tracks := []Track{
		{ID: "melody", Placements: []Placement{{Start: 0, Pattern: "lead"}, {Start: 8, Pattern: "lead"}}},
		{ID: "filter", Placements: []Placement{{Start: 0, Pattern: "sweep"}, {Start: 4, Pattern: "sweep"}, {Start: 8, End: 10, Pattern: "sweep"}}},
	}
	for _, t := range tracks {
		if err := s.AddTrack(t); err != nil {
			return nil, fmt.Errorf("AddTrack failed: %w", err)
		}
	}
	if err := s.SetLoop(Loop{Start: 0, End: 16}); err != nil {
		return nil, err
	}
	for _, l := range []Label{{Tick: 0, Name: "intro"}, {Tick: 8, Name: "theme"}} {
		if err := s.AddLabel(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}
