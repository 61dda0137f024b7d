package cmd

import (
	"context"
	"fmt"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/report"
)

type InfoParams struct {
	Files  []string `pos:"true" help:"Song files to describe."`
	Format string   `short:"f" optional:"true" help:"Format of the files. Detected when empty."`
}

func InfoCmd() *cobra.Command {
	return boa.CmdT[InfoParams]{
		Use:         "info",
		Short:       "Describe songs",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("info", runInfo),
	}.ToCobra()
}

func runInfo(ctx context.Context, e *env, params *InfoParams) error {
	lctx, cancel := e.loadContext(ctx)
	defer cancel()
	results, err := e.loader().LoadMany(lctx, params.Format, params.Files...)
	if err != nil {
		return err
	}
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(e.out)
		}
		if err := report.Song(e.out, res.Song, res); err != nil {
			return err
		}
	}
	return nil
}
