// Package cli implements the operator/debug command tree: a cobra root
// command wrapping the control core, in the same shape as the teacher's
// command tree (one subcommand per concern, flags bound directly into a
// per-command args struct, RunE doing the real work).
package cli

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globalArgs holds the flags every subcommand shares.
type globalArgs struct {
	CVPath string
	Debug  bool
}

// NewRootCommand builds the full lococtl command tree.
func NewRootCommand() *cobra.Command {
	g := &globalArgs{}

	command := &cobra.Command{
		Use:   "lococtl",
		Short: "Locomotive steam-controller operator and debug CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.Debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
		RunE: func(command *cobra.Command, args []string) error {
			return errors.New("please select a command")
		},
	}

	command.PersistentFlags().StringVarP(&g.CVPath, "cv-path", "c", "cv.yaml", "path to the configuration-variable store")
	command.PersistentFlags().BoolVarP(&g.Debug, "debug", "v", false, "increase verbosity to the debug level")

	command.AddCommand(NewRunCommand(g))
	command.AddCommand(NewCVCommand(g))

	return command
}
