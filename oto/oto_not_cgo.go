//go:build !cgo

package oto

import (
	"context"
	"log/slog"

	"github.com/vsariola/kappale/playback"
)

type Clock struct{}

func NewClock(c *playback.Controller, logger *slog.Logger) (*Clock, error) {
	return nil, ErrNoAudio
}

func (c *Clock) Run(ctx context.Context) error {
	return ErrNoAudio
}
