package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"whenmet/internal/device"
)

// Snapshot is a YAML contact-directory file. Handing the CLI a fresh
// snapshot is the directory-changed signal: the engine diffs it against the
// ledger and stamps whatever is new.
//
//	contacts:
//	  - id: c1
//	    name: Ana
//	    phones: ["+1 555 010 2233"]
//	creation_dates:
//	  - phone: "555 010 2233"
//	    created: 1700000000000
type Snapshot struct {
	Contacts      []device.Contact     `yaml:"contacts"`
	CreationDates []device.PhoneRecord `yaml:"creation_dates,omitempty"`
}

var (
	_ device.Directory     = (*Snapshot)(nil)
	_ device.CreationDates = (*Snapshot)(nil)
)

// LoadSnapshot reads and strictly decodes a snapshot file. Unknown fields
// are an error so a typo cannot silently drop contacts.
func LoadSnapshot(path string) (*Snapshot, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var snap Snapshot
	dec := yaml.NewDecoder(strings.NewReader(string(blob)))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	seen := make(map[string]bool, len(snap.Contacts))
	for _, c := range snap.Contacts {
		if c.ID == "" {
			return nil, fmt.Errorf("snapshot %s: contact with empty id", path)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("snapshot %s: duplicate contact id %q", path, c.ID)
		}
		seen[c.ID] = true
	}
	return &snap, nil
}

// A snapshot file on disk is a directory the user already consented to read.
func (s *Snapshot) PermissionStatus(ctx context.Context) (device.Permission, error) {
	return device.PermissionGranted, nil
}

func (s *Snapshot) RequestPermission(ctx context.Context) (device.Permission, error) {
	return device.PermissionGranted, nil
}

func (s *Snapshot) ListContacts(ctx context.Context) ([]device.Contact, error) {
	out := make([]device.Contact, len(s.Contacts))
	copy(out, s.Contacts)
	return out, nil
}

func (s *Snapshot) PhoneCreationDates(ctx context.Context) ([]device.PhoneRecord, error) {
	out := make([]device.PhoneRecord, len(s.CreationDates))
	copy(out, s.CreationDates)
	return out, nil
}

// fixedLocator serves the coordinate given on the command line as the
// current fix.
type fixedLocator struct {
	fix device.Fix
}

var _ device.Locator = (*fixedLocator)(nil)

func (l *fixedLocator) PermissionStatus(ctx context.Context) (device.Permission, error) {
	return device.PermissionGranted, nil
}

func (l *fixedLocator) RequestPermission(ctx context.Context) (device.Permission, error) {
	return device.PermissionGranted, nil
}

func (l *fixedLocator) CurrentFix(ctx context.Context, acc device.Accuracy) (device.Fix, error) {
	return l.fix, nil
}

// parseAt parses a "lat,lng" flag value into a fix.
func parseAt(s string) (device.Fix, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return device.Fix{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return device.Fix{}, fmt.Errorf("latitude in %q: %w", s, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return device.Fix{}, fmt.Errorf("longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return device.Fix{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return device.Fix{Latitude: lat, Longitude: lng}, nil
}
