package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the serialized form of a scenario run, compared against
// the golden file testdata/golden/{name}.golden.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
}

// RunWithGolden executes a scenario, checks its assertions, and compares the
// trace against the scenario's golden file.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario execution failed: %v", err)
	}
	for _, err := range CheckAssertions(result) {
		t.Error(err)
	}

	snapshot := TraceSnapshot{Scenario: scenario.Name, Trace: result.Trace}
	blob, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshaling trace: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, append(blob, '\n'))
}
