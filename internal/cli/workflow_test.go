package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")
	snapshot := writeSnapshot(t, `
contacts:
  - id: c1
    name: Ana
  - id: c2
    name: Ben
`)

	// Sync before a mode is chosen surfaces nothing.
	out, err := runCLI(t, "--db", db, "sync", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "No import mode chosen yet")
	assert.Contains(t, out, "0 visible")

	out, err = runCLI(t, "--db", db, "mode", "import-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Import mode set to import-all")

	// The choice is terminal.
	_, err = runCLI(t, "--db", db, "mode", "new-only")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already chosen")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = runCLI(t, "--db", db, "sync", snapshot, "--at", "10,20")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 2 contacts (2 visible, 2 new, 2 pinned)")

	out, err = runCLI(t, "--db", db, "list", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Ana")
	assert.Contains(t, out, "Ben")

	_, err = runCLI(t, "--db", db, "tag", "add", "c1", "college")
	require.NoError(t, err)

	out, err = runCLI(t, "--db", db, "list", snapshot, "--search", "coll")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana")
	assert.NotContains(t, out, "Ben")

	_, err = runCLI(t, "--db", db, "capture", "c2", "--at", "1,2", "--when", "123")
	require.NoError(t, err)

	out, err = runCLI(t, "--db", db, "map")
	require.NoError(t, err)
	assert.Contains(t, out, "c1: 10,20")
	assert.Contains(t, out, "c2: 1,2")

	out, err = runCLI(t, "--db", db, "map", "--open", "c2")
	require.NoError(t, err)
	assert.Contains(t, out, "geo:1,2")

	// Reset clears everything, including the mode choice.
	_, err = runCLI(t, "--db", db, "reset", "--yes")
	require.NoError(t, err)

	out, err = runCLI(t, "--db", db, "list", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "No contacts to show.")

	out, err = runCLI(t, "--db", db, "mode", "new-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Import mode set to new-only")
}

func TestWorkflow_NewOnlyHidesPreexisting(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")
	snapshot := writeSnapshot(t, `
contacts:
  - id: c1
    name: Ana
`)

	_, err := runCLI(t, "--db", db, "mode", "new-only")
	require.NoError(t, err)

	// The first sync seeds the cutoff; nothing becomes visible.
	out, err := runCLI(t, "--db", db, "sync", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "0 visible")

	later := writeSnapshot(t, `
contacts:
  - id: c1
    name: Ana
  - id: c9
    name: Xena
`)

	// The cutoff has millisecond resolution; make sure the next sync lands
	// strictly after it.
	time.Sleep(5 * time.Millisecond)

	out, err = runCLI(t, "--db", db, "sync", later)
	require.NoError(t, err)
	assert.Contains(t, out, "1 visible")

	out, err = runCLI(t, "--db", db, "list", later)
	require.NoError(t, err)
	assert.Contains(t, out, "Xena")
	assert.NotContains(t, out, "Ana")
}

func TestWorkflow_JSONOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")
	snapshot := writeSnapshot(t, `
contacts:
  - id: c1
    name: Ana
`)

	_, err := runCLI(t, "--db", db, "mode", "import-all")
	require.NoError(t, err)

	out, err := runCLI(t, "--db", db, "--format", "json", "list", snapshot)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestResetRequiresConfirmation(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")

	_, err := runCLI(t, "--db", db, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCaptureRequiresCoordinate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")

	_, err := runCLI(t, "--db", db, "capture", "c1")
	require.Error(t, err)
}

func TestSyncRejectsBadCoordinate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "whenmet.db")
	snapshot := writeSnapshot(t, "contacts: []\n")

	_, err := runCLI(t, "--db", db, "sync", snapshot, "--at", "not,numbers")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
