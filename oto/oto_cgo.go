//go:build cgo

package oto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/kappale/playback"
)

// Clock ticks a controller from the audio device.
type Clock struct {
	context *oto.Context
	player  *oto.Player
}

const otoBufferSize = 20 * time.Millisecond

// NewClock opens the audio device at the sample rate of the song of c.
func NewClock(c *playback.Controller, logger *slog.Logger) (*Clock, error) {
	timing := c.Song().Timing()
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   timing.SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   otoBufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	r := NewTickReader(c, func() int { return c.Song().Timing().SamplesPerTick() }, logger)
	return &Clock{context: ctx, player: ctx.NewPlayer(r)}, nil
}

// Run plays until ctx is done.
func (c *Clock) Run(ctx context.Context) error {
	c.player.Play()
	<-ctx.Done()
	c.player.Pause()
	if err := c.context.Err(); err != nil {
		return fmt.Errorf("oto context failed: %w", err)
	}
	return nil
}
