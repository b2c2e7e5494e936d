package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewTagCommand creates the tag command group.
func NewTagCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage contact tags",
	}

	cmd.AddCommand(newTagAddCommand(rootOpts))
	cmd.AddCommand(newTagRemoveCommand(rootOpts))

	return cmd
}

func newTagAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <contact-id> <tag>",
		Short:         "Add a tag to a contact",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTag(cmd, rootOpts, args[0], args[1], true)
		},
	}
}

func newTagRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <contact-id> <tag>",
		Short:         "Remove a tag from a contact",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTag(cmd, rootOpts, args[0], args[1], false)
		},
	}
}

func runTag(cmd *cobra.Command, opts *RootOptions, id, tag string, add bool) error {
	if tag == "" {
		return NewExitError(ExitCommandError, "tag must not be empty")
	}

	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	eng := a.newEngine(nil, nil, nil)
	eng.Bootstrap()
	if add {
		eng.AddTag(id, tag)
	} else {
		eng.RemoveTag(id, tag)
	}
	if err := eng.RunUntilIdle(commandContext(cmd)); err != nil {
		return WrapExitError(ExitFailure, "tag update failed", err)
	}

	tags := eng.Snapshot().Tags[id]
	payload := map[string]any{"id": id, "tags": tags}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(payload, func(w io.Writer) {
		if len(tags) == 0 {
			fmt.Fprintf(w, "%s has no tags\n", id)
			return
		}
		fmt.Fprintf(w, "%s tags: %v\n", id, tags)
	})
}
