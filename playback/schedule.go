package playback

import (
	"github.com/vsariola/kappale"
)

type (
	// schedule is the song compiled for playback: the parameter changes of
	// every tick, resolved to machine and parameter positions. Ticks never
	// look at the song itself.
	schedule struct {
		length  int
		timing  kappale.Timing
		steps   [][]change  // by absolute tick
		initial [][]float64 // by machine, then parameter
		trigger [][]bool    // trigger parameters are not restored on resync
	}

	change struct {
		machine int
		param   int
		value   float64
	}
)

// compile resolves every event of every unmuted track to the absolute tick
// track offset + placement start + event tick. Events cut off by a
// truncated placement are dropped. Within a tick, changes keep the order of
// tracks, then placements, then events.
func compile(song *kappale.Song) *schedule {
	s := &schedule{length: song.Length(), timing: song.Timing(), steps: make([][]change, song.Length())}
	machines := map[string]int{}
	params := []map[string]int{}
	for m := range song.Machines() {
		machines[m.ID] = len(s.initial)
		s.initial = append(s.initial, m.InitialValues())
		index := make(map[string]int, len(m.Params))
		trig := make([]bool, len(m.Params))
		for i, p := range m.Params {
			index[p.Name] = i
			trig[i] = p.Kind == kappale.Trigger
		}
		params = append(params, index)
		s.trigger = append(s.trigger, trig)
	}
	patterns := map[string]kappale.Pattern{}
	for p := range song.Patterns() {
		patterns[p.ID] = p
	}
	for t := range song.Tracks() {
		if t.Muted {
			continue
		}
		for _, pl := range t.Placements {
			p := patterns[pl.Pattern]
			mi := machines[p.Machine]
			for _, e := range p.Events {
				if e.Tick >= pl.Len() {
					break
				}
				tick := t.Offset + pl.Start + e.Tick
				if tick < 0 || tick >= s.length {
					continue
				}
				s.steps[tick] = append(s.steps[tick], change{machine: mi, param: params[mi][e.Param], value: e.Value})
			}
		}
	}
	return s
}

// at returns the changes scheduled at tick.
func (s *schedule) at(tick int) []change {
	if tick < 0 || tick >= len(s.steps) {
		return nil
	}
	return s.steps[tick]
}

// stateAt returns the value every parameter has when tick starts: the
// initial values overlaid with every change scheduled before tick.
func (s *schedule) stateAt(tick int) [][]float64 {
	ret := make([][]float64, len(s.initial))
	for i, v := range s.initial {
		ret[i] = append([]float64(nil), v...)
	}
	for t := 0; t < min(tick, len(s.steps)); t++ {
		for _, c := range s.steps[t] {
			ret[c.machine][c.param] = c.value
		}
	}
	return ret
}

// cursorAt places tick in the bars and beats of timing.
func cursorAt(timing kappale.Timing, tick int) Cursor {
	c := Cursor{Tick: tick}
	if timing.TicksPerBeat <= 0 || timing.BeatsPerBar <= 0 {
		return c
	}
	beats := tick / timing.TicksPerBeat
	c.Sub = tick % timing.TicksPerBeat
	c.Bar, c.Beat = beats/timing.BeatsPerBar, beats%timing.BeatsPerBar
	return c
}
