package oto

import (
	"errors"
	"log/slog"

	"github.com/vsariola/kappale/playback"
)

const (
	Channels  = 2
	frameSize = Channels * 4
)

// ErrNoAudio is returned when the program was built without an audio
// backend.
var ErrNoAudio = errors.New("audio output is not available in this build")

// TickReader is the stream handed to the audio device. It renders silence
// and ticks its target every time the device has consumed one tick worth of
// frames, so playback follows the clock of the sound card.
type TickReader struct {
	target        playback.Ticker
	framesPerTick func() int
	logger        *slog.Logger

	frames int // frames read since the last tick
	buf    []float32
	out    []byte
}

func NewTickReader(target playback.Ticker, framesPerTick func() int, logger *slog.Logger) *TickReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickReader{target: target, framesPerTick: framesPerTick, logger: logger}
}

func (r *TickReader) Read(p []byte) (int, error) {
	n := len(p) / frameSize
	if n == 0 {
		return 0, nil
	}
	per := max(r.framesPerTick(), 1)
	r.frames += n
	for r.frames >= per {
		r.frames -= per
		if err := r.target.Tick(); err != nil {
			r.logger.Warn("tick failed", "error", err)
		}
	}
	if cap(r.buf) < n*Channels {
		r.buf = make([]float32, n*Channels)
	}
	r.buf = r.buf[:n*Channels]
	clear(r.buf)
	r.out = FloatBufferToLE(r.buf, r.out[:0])
	return copy(p, r.out), nil
}
