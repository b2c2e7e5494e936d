package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"whenmet/internal/engine"
)

// CaptureOptions holds flags for the capture command.
type CaptureOptions struct {
	*RootOptions
	At   string
	When int64
}

// NewCaptureCommand creates the capture command.
func NewCaptureCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CaptureOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capture <contact-id>",
		Short: "Record an authoritative contact-added capture",
		Long: `Record that a contact was added right here, right now. Unlike sync, this
is authoritative: it overwrites the contact's first-seen instant and pin even
when they already exist.

Example:
  whenmet capture c42 --at 52.52,13.405
  whenmet capture c42 --at 52.52,13.405 --when 1700000000000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "capture location as lat,lng (required)")
	cmd.Flags().Int64Var(&opts.When, "when", 0, "capture instant in epoch milliseconds (default now)")
	_ = cmd.MarkFlagRequired("at")

	return cmd
}

func runCapture(cmd *cobra.Command, opts *CaptureOptions, id string) error {
	fix, err := parseAt(opts.At)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --at", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := a.newEngine(nil, nil, nil)
	eng.Bootstrap()
	eng.ContactAdded(engine.Capture{
		ID:        id,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: opts.When,
	})
	if err := eng.RunUntilIdle(commandContext(cmd)); err != nil {
		return WrapExitError(ExitFailure, "capture failed", err)
	}

	st := eng.Snapshot()
	payload := map[string]any{
		"id":         id,
		"first_seen": st.FirstSeen[id],
		"pin":        st.Pins[id],
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(payload, func(w io.Writer) {
		fmt.Fprintf(w, "Captured %s at %g,%g\n", id, fix.Latitude, fix.Longitude)
	})
}
