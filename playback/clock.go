package playback

import (
	"context"
	"log/slog"
	"time"
)

// Ticker is anything advanced one tick at a time, typically a Controller.
type Ticker interface {
	Tick() error
}

// Clock calls Tick at the tick rate of the song. The period is read again
// after every tick so tempo changes take effect right away.
type Clock struct {
	Target Ticker
	Period func() time.Duration
	Logger *slog.Logger
}

// NewClock returns a clock ticking c at the tempo of its song.
func NewClock(c *Controller) *Clock {
	return &Clock{
		Target: c,
		Period: func() time.Duration { return c.Song().Timing().TickDuration() },
		Logger: c.logger,
	}
}

// Run ticks until ctx is done. Failed ticks are logged and do not stop the
// clock.
func (c *Clock) Run(ctx context.Context) error {
	period := c.Period()
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Target.Tick(); err != nil && c.Logger != nil {
				c.Logger.Warn("tick failed", "error", err)
			}
			if p := c.Period(); p != period && p > 0 {
				period = p
				ticker.Reset(period)
			}
		}
	}
}
