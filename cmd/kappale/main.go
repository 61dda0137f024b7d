package main

import (
	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"
	"github.com/vsariola/kappale/cmd"
	"github.com/vsariola/kappale/version"
)

func main() {
	boa.CmdT[boa.NoParams]{
		Use:     "kappale",
		Short:   "Load, convert and play kappale songs",
		Version: version.VersionOrHash,
		SubCmds: []*cobra.Command{
			cmd.PlayCmd(),
			cmd.ConvertCmd(),
			cmd.InfoCmd(),
			cmd.ValidateCmd(),
			cmd.NewCmd(),
			cmd.FormatsCmd(),
			cmd.MIDIPortsCmd(),
			cmd.RemoteCmd(),
		},
	}.Run()
}
