package playback_test

import (
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/engine"
	"github.com/vsariola/kappale/playback"
)

// scale returns a song of 8 ticks where an oscillator plays the notes 60,
// 61, ..., 67, one per tick.
func scale(t *testing.T) *kappale.Song {
	t.Helper()
	s := kappale.NewSong()
	for _, m := range [][2]string{{"osc", "oscillator"}, {"master", "master"}} {
		machine, err := kappale.NewMachine(m[0], m[1])
		if err != nil {
			t.Fatalf("NewMachine failed: %v", err)
		}
		if err := s.AddMachine(machine); err != nil {
			t.Fatalf("AddMachine failed: %v", err)
		}
	}
	if err := s.Connect(kappale.NewWire("osc", "master")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	p := kappale.Pattern{ID: "up", Machine: "osc", Length: 8}
	for i := range 8 {
		p.Events = append(p.Events, kappale.Event{Tick: i, Param: "note", Value: float64(60 + i)})
	}
	if err := s.AddPattern(p); err != nil {
		t.Fatalf("AddPattern failed: %v", err)
	}
	if err := s.AddTrack(kappale.Track{ID: "t", Placements: []kappale.Placement{{Start: 0, Pattern: "up"}}}); err != nil {
		t.Fatalf("AddTrack failed: %v", err)
	}
	return s
}

func demo(t *testing.T) *kappale.Song {
	t.Helper()
	s, err := kappale.NewDemoSong()
	if err != nil {
		t.Fatalf("NewDemoSong failed: %v", err)
	}
	return s
}

func play(t *testing.T, c *playback.Controller) {
	t.Helper()
	if err := c.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
}

func tick(t *testing.T, c *playback.Controller, n int) {
	t.Helper()
	for range n {
		if err := c.Tick(); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}
}

func TestSeekMatchesNaturalAdvance(t *testing.T) {
	for target := 0; target < 16; target++ {
		seeked := engine.NewRecorder()
		a := playback.New(demo(t), seeked)
		play(t, a)
		if err := a.Seek(target); err != nil {
			t.Fatalf("Seek failed: %v", err)
		}
		seeked.Reset()
		tick(t, a, 1)

		natural := engine.NewRecorder()
		b := playback.New(demo(t), natural)
		play(t, b)
		tick(t, b, target)
		natural.Reset()
		tick(t, b, 1)

		if !reflect.DeepEqual(seeked.Updates(), natural.Updates()) {
			t.Errorf("tick %d after seek emitted %v, natural advance emitted %v", target, seeked.Updates(), natural.Updates())
		}
		if a.Position() != b.Position() {
			t.Errorf("tick %d: position after seek %v, after natural advance %v", target, a.Position(), b.Position())
		}
	}
}

func TestSeekResyncsParameters(t *testing.T) {
	rec := engine.NewRecorder()
	c := playback.New(demo(t), rec)
	play(t, c)
	rec.Reset()
	if err := c.Seek(7); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	// flt is the second node; sweep sets its cutoff to 2000 at 4 and 4000 at 6
	var cutoff []float64
	for _, u := range rec.Updates() {
		if u.AtTick != 7 {
			t.Errorf("resync update %v is not at tick 7", u)
		}
		if u.Node == 2 && u.Param == 1 {
			cutoff = append(cutoff, u.Value)
		}
		if u.Node == 1 && u.Param == 0 {
			t.Error("resync should not retrigger notes")
		}
	}
	if !reflect.DeepEqual(cutoff, []float64{4000}) {
		t.Errorf("resync set cutoff to %v, expected [4000]", cutoff)
	}
}

func TestLoopWraparound(t *testing.T) {
	rec := engine.NewRecorder()
	b := playback.NewBroker()
	c := playback.New(scale(t), rec, playback.WithBroker(b))
	if err := c.SetLoop(2, 6); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	play(t, c)
	tick(t, c, 6)
	if pos := c.Position().Tick; pos != 6 {
		t.Fatalf("position %d after 6 ticks, expected 6", pos)
	}
	rec.Reset()
	tick(t, c, 1)
	want := []kappale.ParamUpdate{{Node: 1, Param: 0, Value: 62, AtTick: 2}}
	if got := rec.Updates(); !reflect.DeepEqual(got, want) {
		t.Errorf("tick after the loop end emitted %v, expected %v", got, want)
	}
	status := c.Status()
	if status.Cursor.Tick != 3 || !status.Looped || status.State != playback.Playing {
		t.Errorf("status %+v, expected playing at 3 after looping", status)
	}
	for range 100 {
		tick(t, c, 1)
		if pos := c.Position().Tick; pos < 2 || pos > 6 {
			t.Fatalf("position %d outside the loop", pos)
		}
	}
}

func TestEndOfSongStops(t *testing.T) {
	rec := engine.NewRecorder()
	c := playback.New(scale(t), rec)
	play(t, c)
	tick(t, c, 7)
	if c.State() != playback.Playing {
		t.Fatalf("stopped before the end of the song")
	}
	tick(t, c, 1)
	if c.State() != playback.Stopped || c.Position().Tick != 0 {
		t.Errorf("expected stopped at 0 after the last tick, got %v at %v", c.State(), c.Position())
	}
	if !c.Status().Ended {
		t.Error("status after the last tick should be marked ended")
	}
	rec.Reset()
	tick(t, c, 3)
	if len(rec.Commands()) != 0 {
		t.Errorf("ticks while stopped sent %v", rec.Commands())
	}
}

func TestStopDoesNotEndSong(t *testing.T) {
	c := playback.New(scale(t), engine.NewRecorder())
	play(t, c)
	tick(t, c, 3)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.Status().Ended {
		t.Error("Stop should not mark the song ended")
	}
	play(t, c)
	tick(t, c, 8)
	if !c.Status().Ended {
		t.Fatal("song should have ended")
	}
	// a replaced song, as on a reload, starts over
	if err := c.SetSong(scale(t)); err != nil {
		t.Fatalf("SetSong failed: %v", err)
	}
	if c.Status().Ended {
		t.Error("SetSong should clear the ended mark")
	}
	play(t, c)
	if c.Status().Ended {
		t.Error("Play should clear the ended mark")
	}
}

func TestPauseAndResume(t *testing.T) {
	rec := engine.NewRecorder()
	c := playback.New(scale(t), rec)
	play(t, c)
	tick(t, c, 3)
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	rec.Reset()
	tick(t, c, 2)
	if err := c.Seek(5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if len(rec.Commands()) != 0 || c.Position().Tick != 5 {
		t.Fatalf("paused controller sent %v and is at %v", rec.Commands(), c.Position())
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if n := len(rec.Updates()); n == 0 {
		t.Error("resuming after a seek should resync")
	}
	rec.Reset()
	tick(t, c, 1)
	want := []kappale.ParamUpdate{{Node: 1, Param: 0, Value: 65, AtTick: 5}}
	if got := rec.Updates(); !reflect.DeepEqual(got, want) {
		t.Errorf("tick after resume emitted %v, expected %v", got, want)
	}
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	rec.Reset()
	if err := c.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if c.State() != playback.Playing || c.Position().Tick != 6 {
		t.Errorf("Play while paused should resume at 6, got %v at %v", c.State(), c.Position())
	}
	if len(rec.Commands()) != 0 {
		t.Errorf("resuming without a seek sent %v", rec.Commands())
	}
}

func TestInvalidTransitions(t *testing.T) {
	c := playback.New(scale(t), engine.NewRecorder())
	var serr *playback.StateError
	if err := c.Pause(); !errors.As(err, &serr) {
		t.Errorf("Pause while stopped: expected StateError, got %v", err)
	}
	if err := c.Resume(); !errors.Is(err, playback.ErrInvalidTransition) {
		t.Errorf("Resume while stopped: expected StateError, got %v", err)
	}
	play(t, c)
	if err := c.SetSong(scale(t)); !errors.As(err, &serr) {
		t.Errorf("SetSong while playing: expected StateError, got %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop while stopped failed: %v", err)
	}
}

func TestSeekClamps(t *testing.T) {
	c := playback.New(scale(t), engine.NewRecorder())
	for _, tt := range []struct{ seek, want int }{{-5, 0}, {3, 3}, {8, 8}, {100, 8}} {
		if err := c.Seek(tt.seek); err != nil {
			t.Fatalf("Seek failed: %v", err)
		}
		if got := c.Position().Tick; got != tt.want {
			t.Errorf("Seek(%d) moved to %d, expected %d", tt.seek, got, tt.want)
		}
	}
	play(t, c)
	if got := c.Position().Tick; got != 0 {
		t.Errorf("Play from stopped should start at 0, started at %d", got)
	}
}

func TestPlayFrom(t *testing.T) {
	rec := engine.NewRecorder()
	c := playback.New(scale(t), rec)
	if err := c.PlayFrom(4); err != nil {
		t.Fatalf("PlayFrom failed: %v", err)
	}
	rec.Reset()
	tick(t, c, 1)
	want := []kappale.ParamUpdate{{Node: 1, Param: 0, Value: 64, AtTick: 4}}
	if got := rec.Updates(); !reflect.DeepEqual(got, want) {
		t.Errorf("first tick emitted %v, expected %v", got, want)
	}
}

func TestInvalidSongDoesNotPlay(t *testing.T) {
	s := kappale.NewSong()
	osc, err := kappale.NewMachine("osc", "oscillator")
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	if err := s.AddMachine(osc); err != nil {
		t.Fatalf("AddMachine failed: %v", err)
	}
	rec := engine.NewRecorder()
	c := playback.New(s, rec)
	var verr *kappale.ValidationError
	if err := c.Play(); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if c.State() != playback.Stopped || len(rec.Commands()) != 0 {
		t.Errorf("invalid song left the controller %v with commands %v", c.State(), rec.Commands())
	}
}

func countOps(rec *engine.Recorder, op engine.Op) int {
	n := 0
	for _, c := range rec.Commands() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func TestGraphIsRebuiltOnlyWhenChanged(t *testing.T) {
	song := scale(t)
	rec := engine.NewRecorder()
	c := playback.New(song, rec)
	play(t, c)
	if n := countOps(rec, engine.OpCreate); n != 2 {
		t.Fatalf("created %d nodes, expected 2", n)
	}
	if n := countOps(rec, engine.OpConnect); n != 1 {
		t.Fatalf("made %d connections, expected 1", n)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := song.AddEvent("up", kappale.Event{Tick: 0, Param: "volume", Value: 0.5}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	rec.Reset()
	play(t, c)
	if n := countOps(rec, engine.OpCreate); n != 0 {
		t.Errorf("pattern change rebuilt the graph with %d nodes", n)
	}
	rec.Reset()
	tick(t, c, 1)
	if n := len(rec.Updates()); n != 2 {
		t.Errorf("recompiled schedule emitted %d updates at tick 0, expected 2", n)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	noise, err := kappale.NewMachine("noise", "noise")
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	if err := song.AddMachine(noise); err != nil {
		t.Fatalf("AddMachine failed: %v", err)
	}
	if err := song.Connect(kappale.NewWire("noise", "master")); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	rec.Reset()
	play(t, c)
	if d, cr := countOps(rec, engine.OpDestroy), countOps(rec, engine.OpCreate); d != 2 || cr != 3 {
		t.Errorf("graph change destroyed %d and created %d nodes, expected 2 and 3", d, cr)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := len(rec.Nodes()); n != 0 {
		t.Errorf("%d nodes left after Close", n)
	}
}

func TestRefreshWhilePlaying(t *testing.T) {
	song := scale(t)
	rec := engine.NewRecorder()
	c := playback.New(song, rec)
	play(t, c)
	tick(t, c, 2)
	if err := song.SetTrackMuted("t", true); err != nil {
		t.Fatalf("SetTrackMuted failed: %v", err)
	}
	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	rec.Reset()
	tick(t, c, 3)
	if n := len(rec.Updates()); n != 0 {
		t.Errorf("muted track still emitted %v", rec.Updates())
	}
}

func TestTruncatedPlacementCutsEvents(t *testing.T) {
	rec := engine.NewRecorder()
	c := playback.New(demo(t), rec)
	c.ClearLoop()
	play(t, c)
	rec.Reset()
	tick(t, c, 16)
	for _, u := range rec.Updates() {
		// the third sweep is cut at tick 10, before its second event
		if u.Node == 2 && u.AtTick == 10 {
			t.Errorf("truncated placement emitted %v", u)
		}
	}
	if c.State() != playback.Stopped {
		t.Errorf("expected stopped after the demo song, got %v", c.State())
	}
}

func TestEngineFailureAlerts(t *testing.T) {
	rec := engine.NewRecorder()
	b := playback.NewBroker()
	c := playback.New(scale(t), rec, playback.WithBroker(b))
	play(t, c)
	boom := errors.New("device unplugged")
	rec.Fail = func(op string) error {
		if op == "update" {
			return boom
		}
		return nil
	}
	if err := c.Tick(); !errors.Is(err, boom) {
		t.Errorf("expected the engine error, got %v", err)
	}
	if c.Position().Tick != 1 {
		t.Errorf("a failed tick should still advance, at %v", c.Position())
	}
	alert, ok := playback.TimeoutReceive(b.Alerts, time.Second)
	if !ok || alert.Priority != playback.Error {
		t.Errorf("expected an error alert, got %+v", alert)
	}
}

func TestStatusIsPublished(t *testing.T) {
	b := playback.NewBroker()
	c := playback.New(scale(t), engine.NewRecorder(), playback.WithBroker(b))
	play(t, c)
	tick(t, c, 1)
	var last playback.Status
	for {
		s, ok := playback.TimeoutReceive(b.Status, 10*time.Millisecond)
		if !ok {
			break
		}
		last = s
	}
	if last.State != playback.Playing || last.Cursor.Tick != 1 || last.Length != 8 {
		t.Errorf("last status %+v, expected playing at 1 of 8", last)
	}
}

func TestCursorPosition(t *testing.T) {
	c := playback.New(demo(t), engine.NewRecorder())
	if err := c.Seek(13); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	// four ticks per beat, four beats per bar
	want := playback.Cursor{Tick: 13, Bar: 0, Beat: 3, Sub: 1}
	if got := c.Position(); got != want {
		t.Errorf("position %+v, expected %+v", got, want)
	}
}

func TestConcurrentTransport(t *testing.T) {
	c := playback.New(demo(t), engine.NewRecorder())
	play(t, c)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 2000 {
			c.Tick()
		}
	}()
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(1))
		for range 500 {
			switch r.Intn(5) {
			case 0:
				c.Seek(r.Intn(20))
			case 1:
				c.Pause()
			case 2:
				c.Resume()
			case 3:
				c.Play()
			case 4:
				c.Position()
			}
		}
	}()
	wg.Wait()
	if pos := c.Position().Tick; pos < 0 || pos > 16 {
		t.Errorf("position %d outside the song", pos)
	}
}
