package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale"
)

type NewParams struct {
	Out    string `pos:"true" help:"File to write the song to. The extension picks the format."`
	Name   string `optional:"true" help:"Name of the song."`
	Author string `optional:"true" help:"Author of the song."`
	BPM    int    `optional:"true" help:"Tempo in beats per minute." default:"120"`
	Format string `short:"f" optional:"true" help:"Format to write. Chosen by extension when empty."`
}

func NewCmd() *cobra.Command {
	return boa.CmdT[NewParams]{
		Use:         "new",
		Short:       "Write a starter song",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("new", runNew),
	}.ToCobra()
}

func runNew(ctx context.Context, e *env, params *NewParams) error {
	song, err := kappale.NewDemoSong()
	if err != nil {
		return err
	}
	meta := song.Meta()
	meta.Name = firstNonEmpty(params.Name, meta.Name)
	meta.Author = params.Author
	meta.Created = time.Now().UTC().Format(time.RFC3339)
	song.SetMeta(meta)
	timing := song.Timing()
	timing.BPM = params.BPM
	if err := song.SetTiming(timing); err != nil {
		return err
	}
	if err := e.loader().Save(ctx, song, params.Out, firstNonEmpty(params.Format, e.cfg.SaveFormat)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "wrote %s\n", params.Out)
	return nil
}
