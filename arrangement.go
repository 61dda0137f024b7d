package kappale

import (
	"slices"
)

// AddPattern adds a copy of p. The machine of the pattern must exist and
// every event must set a declared parameter of it to a legal value.
func (s *Song) AddPattern(p Pattern) error {
	if _, ok := s.patternIndex[p.ID]; ok {
		return invalid(InvariantUniqueID, patternSubject(p.ID), "pattern already exists")
	}
	mi, ok := s.machineIndex[p.Machine]
	if !ok {
		return invalid(InvariantMachineRef, patternSubject(p.ID), "unknown machine %q", p.Machine)
	}
	if err := p.validate(&s.machines[mi]); err != nil {
		return err
	}
	s.patternIndex[p.ID] = len(s.patterns)
	s.patterns = append(s.patterns, p.Copy())
	s.touch(false)
	return nil
}

// RemovePattern removes a pattern no track places.
func (s *Song) RemovePattern(id string) error {
	idx, ok := s.patternIndex[id]
	if !ok {
		return invalid(InvariantPatternRef, patternSubject(id), "no such pattern")
	}
	for i := range s.tracks {
		for _, pl := range s.tracks[i].Placements {
			if pl.Pattern == id {
				return invalid(InvariantPatternRef, patternSubject(id), "track %q still places the pattern at tick %d", s.tracks[i].ID, pl.Start)
			}
		}
	}
	s.patterns = slices.Delete(s.patterns, idx, idx+1)
	clear(s.patternIndex)
	for i := range s.patterns {
		s.patternIndex[s.patterns[i].ID] = i
	}
	s.touch(false)
	return nil
}

// AddEvent inserts an event into a pattern, keeping the events ordered.
func (s *Song) AddEvent(patternID string, e Event) error {
	pi, ok := s.patternIndex[patternID]
	if !ok {
		return invalid(InvariantPatternRef, patternSubject(patternID), "no such pattern")
	}
	p := &s.patterns[pi]
	m := &s.machines[s.machineIndex[p.Machine]]
	key, err := p.checkEvent(m, e)
	if err != nil {
		return err
	}
	i, found := slices.BinarySearchFunc(p.Events, key, func(a Event, k eventKey) int {
		ai, _, _ := m.Param(a.Param)
		return compareKeys(eventKey{tick: a.Tick, param: ai}, k)
	})
	if found {
		return invalid(InvariantEventOrder, patternSubject(patternID), "tick %d already sets parameter %q", e.Tick, e.Param)
	}
	p.Events = slices.Insert(p.Events, i, e)
	s.touch(false)
	return nil
}

// RemoveEvent removes the event setting param at tick.
func (s *Song) RemoveEvent(patternID string, tick int, param string) error {
	pi, ok := s.patternIndex[patternID]
	if !ok {
		return invalid(InvariantPatternRef, patternSubject(patternID), "no such pattern")
	}
	p := &s.patterns[pi]
	i := slices.IndexFunc(p.Events, func(e Event) bool { return e.Tick == tick && e.Param == param })
	if i < 0 {
		return invalid(InvariantParamRef, patternSubject(patternID), "no event for parameter %q at tick %d", param, tick)
	}
	p.Events = slices.Delete(p.Events, i, i+1)
	if len(p.Events) == 0 {
		p.Events = nil
	}
	s.touch(false)
	return nil
}

// AddTrack adds a copy of t. The placements of the track are checked one by
// one, in order; the song grows to fit them.
func (s *Song) AddTrack(t Track) error {
	if t.ID == "" {
		return invalid(InvariantUniqueID, trackSubject(t.ID), "track has no id")
	}
	if _, ok := s.trackIndex[t.ID]; ok {
		return invalid(InvariantUniqueID, trackSubject(t.ID), "track already exists")
	}
	n := t.Copy()
	n.Placements = nil
	for _, pl := range t.Placements {
		pl, err := s.checkPlacement(&n, pl, n.Placements)
		if err != nil {
			return err
		}
		n.Placements = insertPlacement(n.Placements, pl)
	}
	s.trackIndex[n.ID] = len(s.tracks)
	s.tracks = append(s.tracks, n)
	s.length = max(s.length, n.absEnd())
	s.touch(false)
	return nil
}

func (s *Song) RemoveTrack(id string) error {
	idx, ok := s.trackIndex[id]
	if !ok {
		return invalid(InvariantTrackRef, trackSubject(id), "no such track")
	}
	s.tracks = slices.Delete(s.tracks, idx, idx+1)
	clear(s.trackIndex)
	for i := range s.tracks {
		s.trackIndex[s.tracks[i].ID] = i
	}
	s.touch(false)
	return nil
}

// AddPlacement places a pattern on a track. The song grows to fit the
// placement.
func (s *Song) AddPlacement(trackID string, pl Placement) error {
	ti, ok := s.trackIndex[trackID]
	if !ok {
		return invalid(InvariantTrackRef, trackSubject(trackID), "no such track")
	}
	t := &s.tracks[ti]
	pl, err := s.checkPlacement(t, pl, t.Placements)
	if err != nil {
		return err
	}
	t.Placements = insertPlacement(t.Placements, pl)
	s.length = max(s.length, t.absEnd())
	s.touch(false)
	return nil
}

// RemovePlacement removes the placement starting at tick start.
func (s *Song) RemovePlacement(trackID string, start int) error {
	ti, ok := s.trackIndex[trackID]
	if !ok {
		return invalid(InvariantTrackRef, trackSubject(trackID), "no such track")
	}
	t := &s.tracks[ti]
	i := slices.IndexFunc(t.Placements, func(p Placement) bool { return p.Start == start })
	if i < 0 {
		return invalid(InvariantPlacementBounds, trackSubject(trackID), "no placement starts at tick %d", start)
	}
	t.Placements = slices.Delete(t.Placements, i, i+1)
	if len(t.Placements) == 0 {
		t.Placements = nil
	}
	s.touch(false)
	return nil
}

// SetTrackOffset shifts every placement of the track. The song grows to fit
// the shifted track.
func (s *Song) SetTrackOffset(trackID string, offset int) error {
	ti, ok := s.trackIndex[trackID]
	if !ok {
		return invalid(InvariantTrackRef, trackSubject(trackID), "no such track")
	}
	t := &s.tracks[ti]
	if len(t.Placements) > 0 && t.Placements[0].Start+offset < 0 {
		return invalid(InvariantPlacementBounds, trackSubject(trackID), "offset %d moves the placement at tick %d before the song start", offset, t.Placements[0].Start)
	}
	t.Offset = offset
	s.length = max(s.length, t.absEnd())
	s.touch(false)
	return nil
}

func (s *Song) SetTrackMuted(trackID string, muted bool) error {
	ti, ok := s.trackIndex[trackID]
	if !ok {
		return invalid(InvariantTrackRef, trackSubject(trackID), "no such track")
	}
	s.tracks[ti].Muted = muted
	s.touch(false)
	return nil
}

// checkPlacement checks pl against the track t, whose placements so far are
// others, and returns it with End filled in.
func (s *Song) checkPlacement(t *Track, pl Placement, others []Placement) (Placement, error) {
	subject := trackSubject(t.ID)
	pi, ok := s.patternIndex[pl.Pattern]
	if !ok {
		return pl, invalid(InvariantPatternRef, subject, "placement at tick %d refers to unknown pattern %q", pl.Start, pl.Pattern)
	}
	patLen := s.patterns[pi].Length
	if pl.End == 0 {
		pl.End = pl.Start + patLen
	}
	if t.Offset+pl.Start < 0 {
		return pl, invalid(InvariantPlacementBounds, subject, "placement at tick %d starts before the song start", pl.Start)
	}
	if pl.Len() <= 0 || pl.Len() > patLen {
		return pl, invalid(InvariantPlacementBounds, subject, "placement [%d, %d) does not fit pattern %q of length %d", pl.Start, pl.End, pl.Pattern, patLen)
	}
	for _, o := range others {
		if o.overlaps(pl) {
			return pl, invalid(InvariantPlacementOverlap, subject, "placement [%d, %d) overlaps [%d, %d)", pl.Start, pl.End, o.Start, o.End)
		}
	}
	return pl, nil
}

func insertPlacement(ps []Placement, pl Placement) []Placement {
	i, _ := slices.BinarySearchFunc(ps, pl.Start, func(a Placement, start int) int { return a.Start - start })
	return slices.Insert(ps, i, pl)
}

func (s *Song) lastPlacementEnd() int {
	end := 0
	for i := range s.tracks {
		end = max(end, s.tracks[i].absEnd())
	}
	return end
}
