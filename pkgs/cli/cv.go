package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keskad/locosteam/pkgs/config"
	"github.com/keskad/locosteam/pkgs/syntax"
)

// NewCVCommand wraps the configuration store as a maintenance-tool surface:
// the same file the running control loop watches for live reload (§5),
// edited here rather than through the wireless link's CV grammar.
func NewCVCommand(g *globalArgs) *cobra.Command {
	command := &cobra.Command{
		Use:   "cv",
		Short: "Inspect and edit the configuration-variable store",
	}

	command.AddCommand(newCVGetCommand(g))
	command.AddCommand(newCVSetCommand(g))
	command.AddCommand(newCVSetRealCommand(g))

	return command
}

func newCVGetCommand(g *globalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   "get [id...]",
		Short: "Print the current value of one or more CVs, or every known CV if none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Load(g.CVPath)
			if err != nil {
				return err
			}

			ids, err := resolveIDs(args)
			if err != nil {
				return err
			}

			for _, id := range ids {
				v, ok := store.Get(id)
				if !ok {
					return fmt.Errorf("unknown CV%d", id)
				}
				bound := config.Bounds[id]
				fmt.Printf("CV%d=%s%s (%s)\n", id, v.String(), unitSuffix(bound.Unit), bound.Description)
			}
			return nil
		},
	}
}

// newCVSetCommand accepts the teacher's batch grammar directly:
// "CV32=20, CV41=75" or one entry per line, integer values only. The
// pressure/PID/ratio CVs are real-valued and go through set-real instead.
func newCVSetCommand(g *globalArgs) *cobra.Command {
	var separator string

	command := &cobra.Command{
		Use:   "set <cv-batch>",
		Short: "Set one or more integer-valued CVs in batch (e.g. \"CV41=75, CV49=1500\")",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Load(g.CVPath)
			if err != nil {
				return err
			}

			entries, err := syntax.ParseCVString(strings.Join(args, " "), separator)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no CV entries parsed from input")
			}

			for _, e := range entries {
				msg, err := store.ValidateAndUpdate(int(e.Number), strconv.FormatUint(uint64(e.Value), 10))
				if err != nil {
					return err
				}
				fmt.Println(msg)
			}
			return store.Save()
		},
	}

	command.Flags().StringVarP(&separator, "separator", "s", ",", "separator between batch entries")
	return command
}

func newCVSetRealCommand(g *globalArgs) *cobra.Command {
	command := &cobra.Command{
		Use:   "set-real <id> <value>",
		Short: "Set a single real-valued CV (pressure target, PID gains, rates)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.Load(g.CVPath)
			if err != nil {
				return err
			}

			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid CV id %q: %w", args[0], err)
			}

			msg, err := store.ValidateAndUpdate(id, args[1])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return store.Save()
		},
	}
	return command
}

func resolveIDs(args []string) ([]int, error) {
	if len(args) == 0 {
		return config.KnownIDs(), nil
	}
	ids := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimPrefix(a, "CV"), "cv"))
		if err != nil {
			return nil, fmt.Errorf("invalid CV id %q: %w", a, err)
		}
		ids = append(ids, n)
	}
	sort.Ints(ids)
	return ids, nil
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
