package cmd

import (
	"context"
	"fmt"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/playback"
	"github.com/vsariola/kappale/rpc"
)

type RemoteParams struct {
	Command string `pos:"true" help:"Transport command to send." alts:"play,pause,resume,stop,seek,status"`
	Tick    int    `pos:"true" optional:"true" help:"Tick to seek to." default:"0"`
	Addr    string `short:"a" optional:"true" help:"Address of the player. Defaults to the configured listen address."`
}

func RemoteCmd() *cobra.Command {
	return boa.CmdT[RemoteParams]{
		Use:         "remote",
		Short:       "Control a player started with play --listen",
		ParamEnrich: defaultParamEnricher(),
		RunFunc:     runner("remote", runRemote),
	}.ToCobra()
}

func runRemote(_ context.Context, e *env, params *RemoteParams) error {
	client, err := rpc.Dial(firstNonEmpty(params.Addr, e.cfg.Listen))
	if err != nil {
		return err
	}
	defer client.Close()
	var status playback.Status
	switch params.Command {
	case "play":
		status, err = client.Play()
	case "pause":
		status, err = client.Pause()
	case "resume":
		status, err = client.Resume()
	case "stop":
		status, err = client.Stop()
	case "seek":
		status, err = client.Seek(params.Tick)
	case "status":
		status, err = client.Status()
	default:
		return fmt.Errorf("unknown command %q", params.Command)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s at %s of %d\n", status.State, status.Cursor, status.Length)
	return nil
}
