//go:build cgo

package midiengine

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Open opens the first MIDI output whose name starts with prefix and
// returns an engine playing on it. close releases the device and the
// driver.
func Open(prefix string) (e *Engine, close func() error, err error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, nil, fmt.Errorf("rtmididrv.New failed: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, nil, fmt.Errorf("listing MIDI outputs failed: %w", err)
	}
	var out drivers.Out
	for _, o := range outs {
		if strings.HasPrefix(o.String(), prefix) {
			out = o
			break
		}
	}
	if out == nil {
		drv.Close()
		return nil, nil, fmt.Errorf("no MIDI output starting with %q", prefix)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		drv.Close()
		return nil, nil, fmt.Errorf("opening MIDI output %q failed: %w", out.String(), err)
	}
	e = New(send)
	close = func() error {
		err := e.Panic()
		out.Close()
		drv.Close()
		return err
	}
	return e, close, nil
}

// Outputs lists the names of the available MIDI outputs.
func Outputs() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv.New failed: %w", err)
	}
	defer drv.Close()
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	ret := make([]string, len(outs))
	for i, o := range outs {
		ret[i] = o.String()
	}
	return ret, nil
}
