package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/report"
	"golang.org/x/sync/errgroup"
)

type ValidateParams struct {
	Files  []string `pos:"true" help:"Song files to check."`
	Format string   `short:"f" optional:"true" help:"Format of the files. Detected when empty."`
}

func ValidateCmd() *cobra.Command {
	return boa.CmdT[ValidateParams]{
		Use:         "validate",
		Short:       "Check that songs load and are consistent",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("validate", runValidate),
	}.ToCobra()
}

func runValidate(ctx context.Context, e *env, params *ValidateParams) error {
	loader := e.loader()
	checks := make([]report.Check, len(params.Files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range params.Files {
		g.Go(func() error {
			lctx, cancel := e.loadContext(ctx)
			defer cancel()
			res, err := loader.Load(lctx, path, params.Format)
			if err == nil {
				err = res.Song.Validate()
			}
			checks[i] = report.Check{Path: path, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if failed := report.Checks(e.out, checks); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(checks))
	}
	return nil
}
