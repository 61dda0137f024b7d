package kappale

import (
	"fmt"
	"math"
	"slices"
)

// Wire connects the output of machine Src to the input of machine Dst.
type Wire struct {
	Src  string  `yaml:"src" json:"src"`
	Dst  string  `yaml:"dst" json:"dst"`
	Gain float64 `yaml:"gain" json:"gain"`
	Pan  float64 `yaml:"pan,omitempty" json:"pan,omitempty"` // -1 left, 0 center, 1 right
}

type wire struct {
	src, dst  int
	gain, pan float64
}

// NewWire returns a wire with unity gain, panned to the center.
func NewWire(src, dst string) Wire { return Wire{Src: src, Dst: dst, Gain: 1} }

// AddMachine adds a copy of m to the song.
func (s *Song) AddMachine(m Machine) error {
	if err := m.validate(); err != nil {
		return err
	}
	if _, ok := s.machineIndex[m.ID]; ok {
		return invalid(InvariantUniqueID, machineSubject(m.ID), "machine already exists")
	}
	if m.Type == Sink {
		if sink, ok := s.sink(); ok {
			return invalid(InvariantSingleSink, machineSubject(m.ID), "song already has sink %q", s.machines[sink].ID)
		}
	}
	s.machineIndex[m.ID] = len(s.machines)
	s.machines = append(s.machines, m.Copy())
	s.outs = append(s.outs, nil)
	s.ins = append(s.ins, nil)
	s.touch(true)
	return nil
}

// RemoveMachine removes the machine and all wires attached to it. Machines
// still played by a pattern cannot be removed.
func (s *Song) RemoveMachine(id string) error {
	idx, ok := s.machineIndex[id]
	if !ok {
		return invalid(InvariantMachineRef, machineSubject(id), "no such machine")
	}
	for i := range s.patterns {
		if s.patterns[i].Machine == id {
			return invalid(InvariantMachineRef, machineSubject(id), "pattern %q still uses the machine", s.patterns[i].ID)
		}
	}
	wires := s.wires[:0:0]
	for _, w := range s.wires {
		if w.src == idx || w.dst == idx {
			continue
		}
		if w.src > idx {
			w.src--
		}
		if w.dst > idx {
			w.dst--
		}
		wires = append(wires, w)
	}
	s.wires = wires
	s.machines = slices.Delete(s.machines, idx, idx+1)
	clear(s.machineIndex)
	for i := range s.machines {
		s.machineIndex[s.machines[i].ID] = i
	}
	s.rebuildAdjacency()
	s.touch(true)
	return nil
}

// SetMachineValue sets the initial value of a parameter.
func (s *Song) SetMachineValue(id, param string, value float64) error {
	idx, ok := s.machineIndex[id]
	if !ok {
		return invalid(InvariantMachineRef, machineSubject(id), "no such machine")
	}
	m := &s.machines[idx]
	_, p, ok := m.Param(param)
	if !ok {
		return invalid(InvariantParamRef, machineSubject(id), "unknown parameter %q", param)
	}
	if err := p.Check(value); err != nil {
		return invalid(InvariantParamValue, machineSubject(id), "parameter %q: %v", param, err)
	}
	if m.Values == nil {
		m.Values = map[string]float64{}
	}
	m.Values[param] = value
	s.touch(true)
	return nil
}

// Connect adds a wire. Wires go from generators and effects to effects and
// the sink. A wire closing a cycle is accepted only if the cycle passes
// through a machine declaring feedback support.
func (s *Song) Connect(w Wire) error {
	src, ok := s.machineIndex[w.Src]
	if !ok {
		return invalid(InvariantWireEndpoint, wireSubject(w.Src, w.Dst), "unknown source machine %q", w.Src)
	}
	dst, ok := s.machineIndex[w.Dst]
	if !ok {
		return invalid(InvariantWireEndpoint, wireSubject(w.Src, w.Dst), "unknown destination machine %q", w.Dst)
	}
	if s.wireIndex(src, dst) >= 0 {
		return invalid(InvariantWireRule, wireSubject(w.Src, w.Dst), "machines are already connected")
	}
	if err := s.checkWireRules(src, dst, w.Gain, w.Pan); err != nil {
		return err
	}
	if !s.machines[src].Feedback && s.reaches(dst, src, true) {
		return invalid(InvariantAcyclicGraph, wireSubject(w.Src, w.Dst), "wire closes a cycle without a feedback machine")
	}
	s.wires = append(s.wires, wire{src: src, dst: dst, gain: w.Gain, pan: w.Pan})
	s.outs[src] = append(s.outs[src], dst)
	s.ins[dst] = append(s.ins[dst], src)
	s.touch(true)
	return nil
}

// Disconnect removes the wire from src to dst.
func (s *Song) Disconnect(srcID, dstID string) error {
	src, ok1 := s.machineIndex[srcID]
	dst, ok2 := s.machineIndex[dstID]
	i := -1
	if ok1 && ok2 {
		i = s.wireIndex(src, dst)
	}
	if i < 0 {
		return invalid(InvariantWireEndpoint, wireSubject(srcID, dstID), "no such wire")
	}
	s.wires = slices.Delete(s.wires, i, i+1)
	s.rebuildAdjacency()
	s.touch(true)
	return nil
}

// Inputs returns the ids of the machines wired into machine id.
func (s *Song) Inputs(id string) []string {
	idx, ok := s.machineIndex[id]
	if !ok {
		return nil
	}
	return s.ids(s.ins[idx])
}

// Outputs returns the ids of the machines machine id is wired to.
func (s *Song) Outputs(id string) []string {
	idx, ok := s.machineIndex[id]
	if !ok {
		return nil
	}
	return s.ids(s.outs[idx])
}

func (s *Song) ids(indices []int) []string {
	ret := make([]string, len(indices))
	for i, idx := range indices {
		ret[i] = s.machines[idx].ID
	}
	return ret
}

func (s *Song) checkWireRules(src, dst int, gain, pan float64) error {
	a, b := &s.machines[src], &s.machines[dst]
	subject := wireSubject(a.ID, b.ID)
	switch {
	case a.Type == Sink:
		return invalid(InvariantWireRule, subject, "sink %q cannot have outputs", a.ID)
	case b.Type == Generator:
		return invalid(InvariantWireRule, subject, "generator %q cannot have inputs", b.ID)
	case math.IsNaN(gain) || math.IsInf(gain, 0) || gain < 0:
		return invalid(InvariantWireRule, subject, "gain %v is not a non-negative number", gain)
	case math.IsNaN(pan) || pan < -1 || pan > 1:
		return invalid(InvariantWireRule, subject, "pan %v outside [-1, 1]", pan)
	}
	return nil
}

func (s *Song) wireIndex(src, dst int) int {
	for i, w := range s.wires {
		if w.src == src && w.dst == dst {
			return i
		}
	}
	return -1
}

// reaches reports whether machine to can be reached from machine from
// following wires. With skipFeedback, the outputs of feedback machines are
// not followed.
func (s *Song) reaches(from, to int, skipFeedback bool) bool {
	visited := make([]bool, len(s.machines))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		if skipFeedback && s.machines[n].Feedback {
			continue
		}
		stack = append(stack, s.outs[n]...)
	}
	return false
}

// checkAcyclic checks that every cycle passes through a feedback machine,
// i.e. the graph without the outputs of feedback machines has no cycles.
func (s *Song) checkAcyclic() error {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(s.machines))
	var visit func(n int) error
	visit = func(n int) error {
		state[n] = onStack
		if !s.machines[n].Feedback {
			for _, m := range s.outs[n] {
				switch state[m] {
				case onStack:
					return invalid(InvariantAcyclicGraph, wireSubject(s.machines[n].ID, s.machines[m].ID), "wire closes a cycle without a feedback machine")
				case unvisited:
					if err := visit(m); err != nil {
						return err
					}
				}
			}
		}
		state[n] = done
		return nil
	}
	for n := range s.machines {
		if state[n] == unvisited {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkComplete checks that a song with machines has exactly one sink and
// that every generator reaches it.
func (s *Song) checkComplete() error {
	if len(s.machines) == 0 {
		return nil
	}
	sink, ok := s.sink()
	if !ok {
		return invalid(InvariantSingleSink, "", "song has machines but no sink")
	}
	for i := range s.machines {
		if s.machines[i].Type == Sink && i != sink {
			return invalid(InvariantSingleSink, machineSubject(s.machines[i].ID), "song already has sink %q", s.machines[sink].ID)
		}
		if s.machines[i].Type == Generator && !s.reaches(i, sink, false) {
			return invalid(InvariantSinkReachable, machineSubject(s.machines[i].ID), "generator does not reach sink %q", s.machines[sink].ID)
		}
	}
	return nil
}

func (s *Song) sink() (int, bool) {
	for i := range s.machines {
		if s.machines[i].Type == Sink {
			return i, true
		}
	}
	return -1, false
}

// Sink returns the id of the sink machine, if the song has one.
func (s *Song) Sink() (string, bool) {
	if i, ok := s.sink(); ok {
		return s.machines[i].ID, true
	}
	return "", false
}

func (s *Song) rebuildAdjacency() {
	s.outs = make([][]int, len(s.machines))
	s.ins = make([][]int, len(s.machines))
	for _, w := range s.wires {
		s.outs[w.src] = append(s.outs[w.src], w.dst)
		s.ins[w.dst] = append(s.ins[w.dst], w.src)
	}
}

func wireSubject(src, dst string) string { return fmt.Sprintf("wire %q -> %q", src, dst) }
