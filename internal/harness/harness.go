// Package harness executes YAML-defined conformance scenarios against the
// reconciliation engine with deterministic fakes: a pinned clock, an
// in-memory directory and blob store, and a scripted locator. Scenario
// traces are compared against golden files.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whenmet/internal/device"
	"whenmet/internal/engine"
	"whenmet/internal/ledger"
	"whenmet/internal/project"
	"whenmet/internal/testutil"
)

// StartTime is the deterministic clock origin for every scenario.
var StartTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TraceEvent records the reconciled state after one step.
type TraceEvent struct {
	Step      string              `json:"step"`
	Visible   []string            `json:"visible"`
	Projected []string            `json:"projected"`
	FirstSeen map[string]int64    `json:"first_seen,omitempty"`
	Tags      map[string][]string `json:"tags,omitempty"`
	Pins      map[string]string   `json:"pins,omitempty"`
}

// Result is a completed scenario run.
type Result struct {
	Scenario *Scenario
	Trace    []TraceEvent
	Final    *engine.State
}

// Run executes a scenario and returns its trace and final state. Execution
// errors (not assertion failures) are returned as errors; call
// CheckAssertions for the verdict.
func Run(s *Scenario) (*Result, error) {
	clock := testutil.NewClock(StartTime)
	dir := testutil.NewDirectory()
	loc := testutil.NewLocator(device.Fix{})
	// Location starts denied; a fix or fix_error step grants it.
	loc.Permission = device.PermissionDenied
	records := ledger.NewStore(testutil.NewBlobs())

	eng := engine.New(dir, loc, &testutil.Dates{}, records,
		engine.WithNow(clock.Now),
		engine.WithFixTimeout(time.Second),
		engine.WithTokenGenerator(engine.NewFixedGenerator("scenario-token")),
	)

	ctx := context.Background()
	eng.Bootstrap()
	if s.Mode != "" {
		eng.ChooseMode(ledger.Mode(s.Mode))
	}
	if err := eng.RunUntilIdle(ctx); err != nil {
		return nil, fmt.Errorf("scenario %s: setup: %w", s.Name, err)
	}

	result := &Result{Scenario: s}
	for i, step := range s.Steps {
		kind, err := step.kind()
		if err != nil {
			return nil, fmt.Errorf("scenario %s: steps[%d]: %w", s.Name, i, err)
		}

		switch kind {
		case "directory":
			dir.SetContacts(step.Directory...)
			eng.DirectoryChanged()
		case "advance":
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return nil, fmt.Errorf("scenario %s: steps[%d]: %w", s.Name, i, err)
			}
			clock.Advance(d)
		case "fix":
			loc.Permission = device.PermissionGranted
			loc.Err = nil
			loc.SetFix(device.Fix{Latitude: step.Fix.Lat, Longitude: step.Fix.Lng})
			// Lifecycle re-activation picks up the permission change.
			eng.Bootstrap()
		case "fix_error":
			loc.Permission = device.PermissionGranted
			loc.Err = errors.New("fix failed")
			eng.Bootstrap()
		case "capture":
			eng.ContactAdded(engine.Capture{
				ID:        step.Capture.ID,
				Latitude:  step.Capture.Lat,
				Longitude: step.Capture.Lng,
				Timestamp: step.Capture.At,
			})
		case "refresh":
			eng.Refresh()
		case "tag":
			eng.AddTag(step.Tag.ID, step.Tag.Tag)
		case "untag":
			eng.RemoveTag(step.Untag.ID, step.Untag.Tag)
		case "search":
			eng.SetSearch(*step.Search)
		case "mode":
			eng.ChooseMode(ledger.Mode(step.Mode))
		}

		if err := eng.RunUntilIdle(ctx); err != nil {
			return nil, fmt.Errorf("scenario %s: steps[%d] (%s): %w", s.Name, i, kind, err)
		}
		result.Trace = append(result.Trace, record(kind, eng.Snapshot()))
	}

	result.Final = eng.Snapshot()
	return result, nil
}

// record converts a state snapshot into a trace event.
func record(step string, st *engine.State) TraceEvent {
	ev := TraceEvent{
		Step:      step,
		Visible:   st.Visible,
		Projected: projectedIDs(st),
	}
	if ev.Visible == nil {
		ev.Visible = []string{}
	}
	if len(st.FirstSeen) > 0 {
		ev.FirstSeen = st.FirstSeen
	}
	if len(st.Tags) > 0 {
		ev.Tags = st.Tags
	}
	if len(st.Pins) > 0 {
		ev.Pins = make(map[string]string, len(st.Pins))
		for id, pin := range st.Pins {
			ev.Pins[id] = fmt.Sprintf("%g,%g@%d", pin.Latitude, pin.Longitude, pin.CapturedAt)
		}
	}
	return ev
}

// projectedIDs runs the view projection over the snapshot and returns the
// resulting order.
func projectedIDs(st *engine.State) []string {
	items := project.List(project.Input{
		Contacts:  st.Contacts,
		Visible:   st.Visible,
		Meta:      st.Meta,
		FirstSeen: st.FirstSeen,
		Tags:      st.Tags,
		Pins:      st.Pins,
		Search:    st.Search,
	})
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// CheckAssertions validates the final state against the scenario's
// assertions, returning one error per failed assertion.
func CheckAssertions(r *Result) []error {
	var errs []error
	st := r.Final

	for i, a := range r.Scenario.Assertions {
		switch a.Type {
		case AssertVisible:
			if !equalIDs(st.Visible, a.IDs) {
				errs = append(errs, fmt.Errorf("assertions[%d]: visible = %v, want %v", i, st.Visible, a.IDs))
			}
		case AssertPinned:
			for _, id := range a.IDs {
				if _, ok := st.Pins[id]; !ok {
					errs = append(errs, fmt.Errorf("assertions[%d]: %s has no pin", i, id))
				}
			}
		case AssertPinless:
			for _, id := range a.IDs {
				if _, ok := st.Pins[id]; ok {
					errs = append(errs, fmt.Errorf("assertions[%d]: %s unexpectedly has a pin", i, id))
				}
			}
		case AssertTags:
			if !equalIDs(st.Tags[a.ID], a.Tags) {
				errs = append(errs, fmt.Errorf("assertions[%d]: tags[%s] = %v, want %v", i, a.ID, st.Tags[a.ID], a.Tags))
			}
		case AssertMode:
			if string(st.Import.Mode) != a.Mode {
				errs = append(errs, fmt.Errorf("assertions[%d]: mode = %q, want %q", i, st.Import.Mode, a.Mode))
			}
		}
	}
	return errs
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
