package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"whenmet/internal/normalize"
	"whenmet/internal/project"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Search string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <contacts.yaml>",
		Short: "Show the projected contact list",
		Long: `Show the visible contacts sorted by when they were added, newest first.
Contacts whose creation instant could not be resolved sort last,
alphabetically. --search filters by case-insensitive substring against name
or any tag.

Example:
  whenmet list contacts.yaml
  whenmet list contacts.yaml --search college`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Search, "search", "", "filter by name or tag substring")

	return cmd
}

func runList(cmd *cobra.Command, opts *ListOptions, snapshotPath string) error {
	snap, err := LoadSnapshot(snapshotPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := a.newEngine(snap, nil, snap)
	eng.Bootstrap()
	eng.SetSearch(opts.Search)
	if err := eng.RunUntilIdle(commandContext(cmd)); err != nil {
		return WrapExitError(ExitFailure, "list failed", err)
	}

	st := eng.Snapshot()
	items := project.List(project.Input{
		Contacts:  st.Contacts,
		Visible:   st.Visible,
		Meta:      st.Meta,
		FirstSeen: st.FirstSeen,
		Tags:      st.Tags,
		Pins:      st.Pins,
		Search:    st.Search,
	})

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(items, func(w io.Writer) {
		if len(items) == 0 {
			fmt.Fprintln(w, "No contacts to show.")
			return
		}
		for _, it := range items {
			fmt.Fprintln(w, formatItem(it))
		}
	})
}

func formatItem(it project.Item) string {
	name := it.Name
	if name == "" {
		name = "(unnamed)"
	}

	added := "added: unknown"
	if it.Known() {
		added = "added: " + normalize.FromMillis(it.Added).UTC().Format(time.RFC3339)
	}

	line := fmt.Sprintf("%-20s %s  [%s]", name, added, it.ID)
	if len(it.Tags) > 0 {
		line += fmt.Sprintf("  tags: %v", it.Tags)
	}
	if it.Pin != nil {
		line += fmt.Sprintf("  pin: %g,%g", it.Pin.Latitude, it.Pin.Longitude)
	}
	return line
}
