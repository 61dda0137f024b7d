package cmd

import (
	"context"
	"fmt"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
)

type ConvertParams struct {
	In         string `pos:"true" help:"Song file to read."`
	Out        string `pos:"true" help:"File to write."`
	FromFormat string `name:"from-format" optional:"true" help:"Format of the input. Detected when empty."`
	ToFormat   string `name:"to-format" optional:"true" help:"Format of the output. Chosen by extension when empty."`
}

func ConvertCmd() *cobra.Command {
	return boa.CmdT[ConvertParams]{
		Use:         "convert",
		Short:       "Convert a song to another format",
		Long:        "Read a song in any supported format, including older versions, and write it in the current version of a format.",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("convert", runConvert),
	}.ToCobra()
}

func runConvert(ctx context.Context, e *env, params *ConvertParams) error {
	loader := e.loader()
	lctx, cancel := e.loadContext(ctx)
	defer cancel()
	res, err := loader.Load(lctx, params.In, params.FromFormat)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(e.out, "warning: %s\n", w)
	}
	to := firstNonEmpty(params.ToFormat, e.cfg.SaveFormat)
	if err := loader.Save(ctx, res.Song, params.Out, to); err != nil {
		return err
	}
	format, err := e.registry.ForSave(params.Out, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s (%s) -> %s (%s)\n", params.In, res.Format, params.Out, format.ID)
	return nil
}
