package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/engine/midiengine"
)

func MIDIPortsCmd() *cobra.Command {
	return boa.CmdT[boa.NoParams]{
		Use:   "midi-ports",
		Short: "List the MIDI outputs the midi engine can play on",
		RunFunc: runner("midi-ports", func(_ context.Context, e *env, _ *boa.NoParams) error {
			return listMIDIPorts(e.out, midiengine.Outputs)
		}),
	}.ToCobra()
}

func listMIDIPorts(w io.Writer, outputs func() ([]string, error)) error {
	names, err := outputs()
	if err != nil {
		return fmt.Errorf("listing MIDI outputs failed: %w", err)
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "no MIDI outputs")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}
