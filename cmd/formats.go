package cmd

import (
	"context"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/report"
)

func FormatsCmd() *cobra.Command {
	return boa.CmdT[boa.NoParams]{
		Use:   "formats",
		Short: "List the supported song formats",
		RunFunc: runner("formats", func(_ context.Context, e *env, _ *boa.NoParams) error {
			report.Formats(e.out, e.registry)
			return nil
		}),
	}.ToCobra()
}
