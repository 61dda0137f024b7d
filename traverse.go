package kappale

import "iter"

// Machines yields copies of the machines in the order they were added.
func (s *Song) Machines() iter.Seq[Machine] {
	return func(yield func(Machine) bool) {
		for i := range s.machines {
			if !yield(s.machines[i].Copy()) {
				return
			}
		}
	}
}

// Wires yields the wires in the order they were added.
func (s *Song) Wires() iter.Seq[Wire] {
	return func(yield func(Wire) bool) {
		for _, w := range s.wires {
			if !yield(Wire{Src: s.machines[w.src].ID, Dst: s.machines[w.dst].ID, Gain: w.gain, Pan: w.pan}) {
				return
			}
		}
	}
}

// Patterns yields copies of the patterns in the order they were added.
func (s *Song) Patterns() iter.Seq[Pattern] {
	return func(yield func(Pattern) bool) {
		for i := range s.patterns {
			if !yield(s.patterns[i].Copy()) {
				return
			}
		}
	}
}

// Tracks yields copies of the tracks in the order they were added.
func (s *Song) Tracks() iter.Seq[Track] {
	return func(yield func(Track) bool) {
		for i := range s.tracks {
			if !yield(s.tracks[i].Copy()) {
				return
			}
		}
	}
}

// Labels yields the labels ordered by tick.
func (s *Song) Labels() iter.Seq[Label] {
	return func(yield func(Label) bool) {
		for _, l := range s.labels {
			if !yield(l) {
				return
			}
		}
	}
}

func (s *Song) Machine(id string) (Machine, bool) {
	if i, ok := s.machineIndex[id]; ok {
		return s.machines[i].Copy(), true
	}
	return Machine{}, false
}

func (s *Song) Pattern(id string) (Pattern, bool) {
	if i, ok := s.patternIndex[id]; ok {
		return s.patterns[i].Copy(), true
	}
	return Pattern{}, false
}

func (s *Song) Track(id string) (Track, bool) {
	if i, ok := s.trackIndex[id]; ok {
		return s.tracks[i].Copy(), true
	}
	return Track{}, false
}

// Counts returns the number of machines, wires, patterns and tracks.
func (s *Song) Counts() (machines, wires, patterns, tracks int) {
	return len(s.machines), len(s.wires), len(s.patterns), len(s.tracks)
}
