package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	At string
}

// syncResult is the sync command's output payload.
type syncResult struct {
	Mode      string   `json:"mode"`
	Contacts  int      `json:"contacts"`
	Visible   int      `json:"visible"`
	NewIDs    []string `json:"new_ids,omitempty"`
	PinnedIDs []string `json:"pinned_ids,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <contacts.yaml>",
		Short: "Reconcile a directory snapshot against the ledger",
		Long: `Reconcile a contact directory snapshot against the first-seen ledger.

Handing sync a fresh snapshot is the directory-changed signal: contacts not
yet in the ledger are stamped with the current instant, and when --at supplies
a coordinate each new contact also gets a map pin.

Example:
  whenmet sync contacts.yaml
  whenmet sync contacts.yaml --at 52.52,13.405`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "current location as lat,lng (omit for no pin capture)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions, snapshotPath string) error {
	snap, err := LoadSnapshot(snapshotPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}

	var loc device.Locator
	if opts.At != "" {
		fix, err := parseAt(opts.At)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --at", err)
		}
		loc = &fixedLocator{fix: fix}
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	before := a.records.LoadFirstSeen(ctx)

	eng := a.newEngine(snap, loc, snap)
	// Prepare, not Bootstrap: the directory-changed handler must see the
	// delta against the persisted ledger, and it runs its own fetch.
	eng.Prepare()
	eng.DirectoryChanged()
	if err := eng.RunUntilIdle(ctx); err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	st := eng.Snapshot()
	res := syncResult{
		Mode:     string(st.Import.Mode),
		Contacts: len(st.Contacts),
		Visible:  len(st.Visible),
	}
	for _, c := range st.Contacts {
		if _, ok := before[c.ID]; ok {
			continue
		}
		if _, ok := st.FirstSeen[c.ID]; ok {
			res.NewIDs = append(res.NewIDs, c.ID)
		}
		if _, ok := st.Pins[c.ID]; ok {
			res.PinnedIDs = append(res.PinnedIDs, c.ID)
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(res, func(w io.Writer) {
		if res.Mode == string(ledger.ModeUnset) {
			fmt.Fprintln(w, "No import mode chosen yet; run 'whenmet mode' first.")
		}
		fmt.Fprintf(w, "Synced %d contacts (%d visible, %d new, %d pinned)\n",
			res.Contacts, res.Visible, len(res.NewIDs), len(res.PinnedIDs))
	})
}

// commandContext returns the command's context, or a background context when
// the command runs outside cobra's Execute path (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
