package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the ledger, tags, pins, and import mode",
		Long: `Clear every persisted record: the first-seen ledger, tags, pins, and the
import mode choice. This is the only way to clear first-seen entries or to
choose a different import mode. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the reset")

	return cmd
}

func runReset(cmd *cobra.Command, opts *ResetOptions) error {
	if !opts.Yes {
		return NewExitError(ExitCommandError, "refusing to reset without --yes")
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	a.records.Reset(commandContext(cmd))

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(map[string]string{"reset": "done"}, func(w io.Writer) {
		fmt.Fprintln(w, "All records cleared.")
	})
}
