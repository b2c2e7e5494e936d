package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"whenmet/internal/ledger"
)

// NewModeCommand creates the mode command.
func NewModeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode <import-all|new-only>",
		Short: "Choose the import mode (once)",
		Long: `Choose how existing contacts enter the timeline. The choice is made once
per database and cannot be changed afterwards.

  import-all  show the whole directory; unknown contacts are stamped with the
              current instant on every sync
  new-only    hide everything that exists at the moment of choosing; only
              contacts added afterwards appear`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, rootOpts, ledger.Mode(args[0]))
		},
	}

	return cmd
}

func runMode(cmd *cobra.Command, opts *RootOptions, mode ledger.Mode) error {
	if !mode.Valid() {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid mode %q: must be import-all or new-only", mode))
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := a.newEngine(nil, nil, nil)
	eng.Bootstrap()
	eng.ChooseMode(mode)
	if err := eng.RunUntilIdle(commandContext(cmd)); err != nil {
		return WrapExitError(ExitFailure, "mode change failed", err)
	}

	chosen := eng.Snapshot().Import.Mode
	if chosen != mode {
		return NewExitError(ExitFailure,
			fmt.Sprintf("import mode already chosen: %s", chosen))
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(map[string]string{"mode": string(chosen)}, func(w io.Writer) {
		fmt.Fprintf(w, "Import mode set to %s\n", chosen)
	})
}
