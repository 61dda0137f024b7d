package cmd

import (
	"fmt"
	"log/slog"

	"github.com/vsariola/kappale"
	"github.com/vsariola/kappale/engine"
	"github.com/vsariola/kappale/engine/midiengine"
)

// openEngine returns the engine called name and a function releasing it.
// midiPort and velocity only matter for the midi engine.
func openEngine(name, midiPort string, velocity int, logger *slog.Logger) (kappale.Engine, func() error, error) {
	nop := func() error { return nil }
	switch name {
	case "log":
		return engine.NewLogEngine(logger, slog.LevelInfo), nop, nil
	case "null":
		return engine.NewLogEngine(slog.New(slog.DiscardHandler), slog.LevelDebug), nop, nil
	case "midi":
		e, closer, err := midiengine.Open(midiPort)
		if err != nil {
			return nil, nil, fmt.Errorf("opening MIDI output failed: %w", err)
		}
		e.SetVelocity(uint8(min(max(velocity, 1), 127)))
		return e, func() error {
			if err := e.Panic(); err != nil {
				logger.Warn("silencing MIDI output failed", "error", err)
			}
			return closer()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown engine %q", name)
}
