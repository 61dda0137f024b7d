package playback_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vsariola/kappale/engine"
	"github.com/vsariola/kappale/playback"
)

type countingTicker struct {
	n atomic.Int64
}

func (c *countingTicker) Tick() error {
	if c.n.Add(1)%2 == 0 {
		return errors.New("every other tick fails")
	}
	return nil
}

func TestClockTicksUntilCancelled(t *testing.T) {
	target := &countingTicker{}
	clock := &playback.Clock{Target: target, Period: func() time.Duration { return time.Millisecond }}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error)
	go func() { done <- clock.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the context was done")
	}
	if target.n.Load() < 2 {
		t.Errorf("clock ticked %d times in 50ms with a 1ms period", target.n.Load())
	}
}

func TestClockPlaysController(t *testing.T) {
	song := scale(t)
	timing := song.Timing()
	timing.BPM = 999
	timing.TicksPerBeat = 16
	if err := song.SetTiming(timing); err != nil {
		t.Fatalf("SetTiming failed: %v", err)
	}
	c := playback.New(song, engine.NewRecorder())
	play(t, c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go playback.NewClock(c).Run(ctx)
	for c.State() == playback.Playing {
		if ctx.Err() != nil {
			t.Fatal("song did not finish playing")
		}
		time.Sleep(time.Millisecond)
	}
	if c.Position().Tick != 0 {
		t.Errorf("finished song left the cursor at %v", c.Position())
	}
}
