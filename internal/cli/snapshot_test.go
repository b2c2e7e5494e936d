package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whenmet/internal/device"
)

func writeSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSnapshot(t *testing.T) {
	path := writeSnapshot(t, `
contacts:
  - id: c1
    name: Ana
    phones: ["+1 555 010 2233"]
  - id: c2
creation_dates:
  - phone: "555 010 2233"
    created: 1700000000000
`)

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)

	contacts, err := snap.ListContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Ana", contacts[0].Name)
	assert.Equal(t, "+1 555 010 2233", contacts[0].PrimaryPhone())

	dates, err := snap.PhoneCreationDates(context.Background())
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, int64(1700000000000), dates[0].Created)

	perm, err := snap.PermissionStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, device.PermissionGranted, perm)
}

func TestLoadSnapshot_UnknownFieldRejected(t *testing.T) {
	path := writeSnapshot(t, `
contacts:
  - id: c1
    nickname: annie
`)

	_, err := LoadSnapshot(path)
	assert.Error(t, err)
}

func TestLoadSnapshot_EmptyIDRejected(t *testing.T) {
	path := writeSnapshot(t, `
contacts:
  - name: Ana
`)

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestLoadSnapshot_DuplicateIDRejected(t *testing.T) {
	path := writeSnapshot(t, `
contacts:
  - id: c1
  - id: c1
`)

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseAt(t *testing.T) {
	fix, err := parseAt("52.52, 13.405")
	require.NoError(t, err)
	assert.Equal(t, device.Fix{Latitude: 52.52, Longitude: 13.405}, fix)

	_, err = parseAt("52.52")
	assert.Error(t, err)

	_, err = parseAt("north,east")
	assert.Error(t, err)

	_, err = parseAt("91,0")
	assert.Error(t, err)

	_, err = parseAt("0,181")
	assert.Error(t, err)
}
