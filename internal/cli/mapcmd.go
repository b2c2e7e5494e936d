package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"whenmet/internal/project"
)

// MapOptions holds flags for the map command.
type MapOptions struct {
	*RootOptions
	Open string
}

// mapResult is the map command's output payload.
type mapResult struct {
	Region project.Region `json:"region"`
	Pins   []mapPin       `json:"pins,omitempty"`
	URL    string         `json:"url,omitempty"`
}

type mapPin struct {
	ID         string  `json:"id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	CapturedAt int64   `json:"captured_at"`
}

// NewMapCommand creates the map command.
func NewMapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Show the map viewport and pinned contacts",
		Long: `Show the viewport covering every pinned contact, or the configured
fallback region when nothing is pinned. --open emits a geo: URL for one
contact's pin, for handoff to an external map application.

Example:
  whenmet map
  whenmet map --open c42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMap(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Open, "open", "", "emit a geo: URL for this contact's pin")

	return cmd
}

func runMap(cmd *cobra.Command, opts *MapOptions) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	pins := a.records.LoadPins(ctx)

	if opts.Open != "" {
		pin, ok := pins[opts.Open]
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("no pin for contact %s", opts.Open))
		}
		url := project.GeoURL(pin, opts.Open)
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return f.Success(mapResult{URL: url}, func(w io.Writer) {
			fmt.Fprintln(w, url)
		})
	}

	res := mapResult{
		Region: project.Viewport(pins, a.cfg.FallbackRegion(), a.cfg.MinSpan),
	}
	for id, pin := range pins {
		res.Pins = append(res.Pins, mapPin{
			ID:         id,
			Latitude:   pin.Latitude,
			Longitude:  pin.Longitude,
			CapturedAt: pin.CapturedAt,
		})
	}
	sort.Slice(res.Pins, func(i, j int) bool { return res.Pins[i].ID < res.Pins[j].ID })

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "Viewport: center %g,%g span %g x %g\n",
			res.Region.Latitude, res.Region.Longitude,
			res.Region.LatitudeDelta, res.Region.LongitudeDelta)
		for _, p := range res.Pins {
			fmt.Fprintf(w, "  %s: %g,%g\n", p.ID, p.Latitude, p.Longitude)
		}
	})
}
