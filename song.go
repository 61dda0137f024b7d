package kappale

import (
	"fmt"
	"math/bits"
	"slices"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is the version of the document layout written by the
// current savers.
const FormatVersion = 2

type (
	// Song is the root of the document model. It owns its machines, wires,
	// patterns and tracks; they are only reachable through copies, so every
	// change goes through a method of the song, which checks the change
	// against the invariants of the model before applying it. A rejected
	// change returns a *ValidationError and leaves the song untouched.
	//
	// A Song is not safe for concurrent mutation. Reading methods may run
	// concurrently with each other as long as no mutation is in progress.
	Song struct {
		meta    Meta
		version int // of the document the song was read from, 0 if built in memory
		timing  Timing
		length  int
		loop    *Loop
		labels  []Label

		// machines is an arena indexed by machineIndex; wires refer to
		// machines by arena index and outs/ins are the adjacency lists.
		machines     []Machine
		machineIndex map[string]int
		wires        []wire
		outs, ins    [][]int

		patterns     []Pattern
		patternIndex map[string]int
		tracks       []Track
		trackIndex   map[string]int

		revision      uint64
		graphRevision uint64
	}

	// Meta is free-form information about the song.
	Meta struct {
		ID      string `yaml:"id,omitempty" json:"id,omitempty"`
		Name    string `yaml:"name,omitempty" json:"name,omitempty"`
		Author  string `yaml:"author,omitempty" json:"author,omitempty"`
		Genre   string `yaml:"genre,omitempty" json:"genre,omitempty"`
		Info    string `yaml:"info,omitempty" json:"info,omitempty"`
		Created string `yaml:"created,omitempty" json:"created,omitempty"`
		Changed string `yaml:"changed,omitempty" json:"changed,omitempty"`
	}

	// Timing sets how fast the song is played. One beat is TicksPerBeat
	// ticks; BeatsPerBar and BeatUnit form the time signature.
	Timing struct {
		BPM          int `yaml:"bpm" json:"bpm"`
		TicksPerBeat int `yaml:"ticksperbeat" json:"ticksperbeat"`
		BeatsPerBar  int `yaml:"beatsperbar" json:"beatsperbar"`
		BeatUnit     int `yaml:"beatunit" json:"beatunit"`
		SampleRate   int `yaml:"samplerate" json:"samplerate"`
	}

	// Loop is a half-open range of ticks [Start, End).
	Loop struct {
		Start int `yaml:"start" json:"start"`
		End   int `yaml:"end" json:"end"`
	}

	// Label names a position of the song, e.g. "chorus".
	Label struct {
		Tick int    `yaml:"tick" json:"tick"`
		Name string `yaml:"name" json:"name"`
	}
)

// DefaultTiming is the timing of a new song: 120 BPM, four ticks per beat,
// 4/4 and 44100 Hz.
var DefaultTiming = Timing{BPM: 120, TicksPerBeat: 4, BeatsPerBar: 4, BeatUnit: 4, SampleRate: 44100}

// NewSong returns an empty song with a fresh identifier and default timing.
func NewSong() *Song {
	return &Song{
		meta:         Meta{ID: uuid.NewString()},
		timing:       DefaultTiming,
		machineIndex: map[string]int{},
		patternIndex: map[string]int{},
		trackIndex:   map[string]int{},
	}
}

func (s *Song) Meta() Meta { return s.meta }

func (s *Song) SetMeta(m Meta) {
	s.meta = m
	s.touch(false)
}

// DocumentVersion returns the version of the document the song was loaded
// from, or 0 for a song that was not loaded.
func (s *Song) DocumentVersion() int { return s.version }

func (s *Song) SetDocumentVersion(v int) { s.version = v }

func (s *Song) Timing() Timing { return s.timing }

func (s *Song) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.timing = t
	s.touch(false)
	return nil
}

// Length returns the length of the song in ticks.
func (s *Song) Length() int { return s.length }

// SetLength sets the length of the song. The song cannot be made shorter
// than its last placement, its loop or its last label.
func (s *Song) SetLength(length int) error {
	if length < 0 {
		return invalid(InvariantSongLength, "", "length %d is negative", length)
	}
	if end := s.lastPlacementEnd(); length < end {
		return invalid(InvariantSongLength, "", "length %d cuts placements ending at %d", length, end)
	}
	if s.loop != nil && length < s.loop.End {
		return invalid(InvariantSongLength, "", "length %d cuts the loop ending at %d", length, s.loop.End)
	}
	if n := len(s.labels); n > 0 && length < s.labels[n-1].Tick {
		return invalid(InvariantSongLength, "", "length %d cuts the label at %d", length, s.labels[n-1].Tick)
	}
	s.length = length
	s.touch(false)
	return nil
}

// Loop returns the loop stored with the song, if any.
func (s *Song) Loop() (Loop, bool) {
	if s.loop == nil {
		return Loop{}, false
	}
	return *s.loop, true
}

func (s *Song) SetLoop(l Loop) error {
	if err := l.check(s.length); err != nil {
		return err
	}
	s.loop = &l
	s.touch(false)
	return nil
}

func (s *Song) ClearLoop() {
	s.loop = nil
	s.touch(false)
}

func (l Loop) check(length int) error {
	if l.Start < 0 || l.Start >= l.End || l.End > length {
		return invalid(InvariantLoopBounds, "", "loop [%d, %d) is not a non-empty range within [0, %d]", l.Start, l.End, length)
	}
	return nil
}

// AddLabel adds a named marker. Labels are kept sorted by tick and a tick
// holds at most one label.
func (s *Song) AddLabel(l Label) error {
	if l.Name == "" {
		return invalid(InvariantLabel, "", "label at tick %d has no name", l.Tick)
	}
	if l.Tick < 0 || l.Tick > s.length {
		return invalid(InvariantLabel, "", "label %q at tick %d outside [0, %d]", l.Name, l.Tick, s.length)
	}
	i, found := slices.BinarySearchFunc(s.labels, l.Tick, func(a Label, t int) int { return a.Tick - t })
	if found {
		return invalid(InvariantLabel, "", "tick %d already has label %q", l.Tick, s.labels[i].Name)
	}
	s.labels = slices.Insert(s.labels, i, l)
	s.touch(false)
	return nil
}

func (s *Song) RemoveLabel(tick int) error {
	i, found := slices.BinarySearchFunc(s.labels, tick, func(a Label, t int) int { return a.Tick - t })
	if !found {
		return invalid(InvariantLabel, "", "no label at tick %d", tick)
	}
	s.labels = slices.Delete(s.labels, i, i+1)
	s.touch(false)
	return nil
}

// Revision changes whenever the song changes.
func (s *Song) Revision() uint64 { return s.revision }

// GraphRevision changes whenever machines or wires change.
func (s *Song) GraphRevision() uint64 { return s.graphRevision }

func (s *Song) touch(graph bool) {
	s.revision++
	if graph {
		s.graphRevision++
	}
}

// Validate checks the timing.
func (t Timing) Validate() error {
	switch {
	case t.BPM < 1 || t.BPM > 999:
		return invalid(InvariantTiming, "", "bpm %d outside [1, 999]", t.BPM)
	case t.TicksPerBeat < 1 || t.TicksPerBeat > 256:
		return invalid(InvariantTiming, "", "ticks per beat %d outside [1, 256]", t.TicksPerBeat)
	case t.BeatsPerBar < 1 || t.BeatsPerBar > 64:
		return invalid(InvariantTiming, "", "beats per bar %d outside [1, 64]", t.BeatsPerBar)
	case t.BeatUnit < 1 || t.BeatUnit > 64 || bits.OnesCount(uint(t.BeatUnit)) != 1:
		return invalid(InvariantTiming, "", "beat unit %d is not a power of two up to 64", t.BeatUnit)
	case t.SampleRate < 8000 || t.SampleRate > 384000:
		return invalid(InvariantTiming, "", "sample rate %d outside [8000, 384000]", t.SampleRate)
	}
	return nil
}

// TickDuration returns the wall-clock duration of one tick.
func (t Timing) TickDuration() time.Duration {
	return time.Duration(float64(time.Minute) / float64(t.BPM*t.TicksPerBeat))
}

// SamplesPerTick returns the number of audio frames in one tick.
func (t Timing) SamplesPerTick() int {
	return t.SampleRate * 60 / (t.BPM * t.TicksPerBeat)
}

// Copy makes a deep copy of the song. The copy has the same identifier and
// starts from the same revisions.
func (s *Song) Copy() *Song {
	c := &Song{
		meta:          s.meta,
		version:       s.version,
		timing:        s.timing,
		length:        s.length,
		labels:        clone(s.labels),
		machineIndex:  make(map[string]int, len(s.machines)),
		wires:         clone(s.wires),
		patternIndex:  make(map[string]int, len(s.patterns)),
		trackIndex:    make(map[string]int, len(s.tracks)),
		revision:      s.revision,
		graphRevision: s.graphRevision,
	}
	if s.loop != nil {
		l := *s.loop
		c.loop = &l
	}
	for i := range s.machines {
		c.machines = append(c.machines, s.machines[i].Copy())
		c.machineIndex[s.machines[i].ID] = i
	}
	c.rebuildAdjacency()
	for i := range s.patterns {
		c.patterns = append(c.patterns, s.patterns[i].Copy())
		c.patternIndex[s.patterns[i].ID] = i
	}
	for i := range s.tracks {
		c.tracks = append(c.tracks, s.tracks[i].Copy())
		c.trackIndex[s.tracks[i].ID] = i
	}
	return c
}

// Validate checks the whole song. Besides the rules every mutation
// enforces, it checks that the machine graph is complete: a song with
// machines has exactly one sink and every generator reaches it.
func (s *Song) Validate() error {
	if err := s.timing.Validate(); err != nil {
		return err
	}
	for i := range s.machines {
		if err := s.machines[i].validate(); err != nil {
			return err
		}
	}
	for _, w := range s.wires {
		if err := s.checkWireRules(w.src, w.dst, w.gain, w.pan); err != nil {
			return err
		}
	}
	if err := s.checkAcyclic(); err != nil {
		return err
	}
	if err := s.checkComplete(); err != nil {
		return err
	}
	for i := range s.patterns {
		p := &s.patterns[i]
		mi, ok := s.machineIndex[p.Machine]
		if !ok {
			return invalid(InvariantMachineRef, patternSubject(p.ID), "unknown machine %q", p.Machine)
		}
		if err := p.validate(&s.machines[mi]); err != nil {
			return err
		}
	}
	for i := range s.tracks {
		t := &s.tracks[i]
		for j, pl := range t.Placements {
			if _, err := s.checkPlacement(t, pl, t.Placements[:j]); err != nil {
				return err
			}
		}
	}
	if end := s.lastPlacementEnd(); s.length < end {
		return invalid(InvariantSongLength, "", "length %d cuts placements ending at %d", s.length, end)
	}
	if s.loop != nil {
		if err := s.loop.check(s.length); err != nil {
			return err
		}
	}
	for i, l := range s.labels {
		if l.Name == "" || l.Tick < 0 || l.Tick > s.length || (i > 0 && s.labels[i-1].Tick >= l.Tick) {
			return invalid(InvariantLabel, "", "label %q at tick %d is misplaced", l.Name, l.Tick)
		}
	}
	return nil
}

func (s *Song) String() string {
	return fmt.Sprintf("song %q (%d machines, %d patterns, %d tracks, %d ticks)", s.meta.Name, len(s.machines), len(s.patterns), len(s.tracks), s.length)
}
