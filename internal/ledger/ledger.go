// Package ledger defines the persisted records of the reconciliation core
// and a typed store that reads and writes them through the blob persistence
// capability.
//
// Five logical records exist: the first-seen map, the tag map, the pin map,
// the import mode, and the import cutoff. Reads never fail: a malformed blob
// decodes to the record's zero value, which is logged and treated as absent.
package ledger

import "sort"

// Persistence keys for the five logical records.
const (
	KeyFirstSeen    = "first_seen"
	KeyTags         = "tags"
	KeyPins         = "pins"
	KeyImportMode   = "import_mode"
	KeyImportCutoff = "import_cutoff"
)

// Mode is the import policy chosen once per installation.
type Mode string

const (
	// ModeUnset means the user has not chosen yet; nothing is stamped or
	// shown until they do.
	ModeUnset Mode = ""
	// ModeImportAll shows the entire directory, stamping unknown contacts
	// with the current instant on every fetch.
	ModeImportAll Mode = "import-all"
	// ModeNewOnly hides everything that existed when the mode was chosen
	// and surfaces only contacts that appear afterwards.
	ModeNewOnly Mode = "new-only"
)

// Valid reports whether m is one of the two chooseable modes.
func (m Mode) Valid() bool {
	return m == ModeImportAll || m == ModeNewOnly
}

// ImportState is the persisted policy state. Cutoff is the epoch-millisecond
// seeding instant for new-only mode; zero means not yet seeded. Mode and
// cutoff are stored under separate keys but form one semantic fact:
// "marker present" and "cutoff present" are the same thing.
type ImportState struct {
	Mode   Mode
	Cutoff int64
}

// Seeded reports whether the new-only cutoff has been captured.
func (s ImportState) Seeded() bool {
	return s.Cutoff != 0
}

// FirstSeen maps contact identifier → epoch-millisecond first-seen instant.
//
// INVARIANT: once set, a value is never raised. It is lowered only by an
// authoritative capture event or earlier platform evidence, and cleared only
// by an explicit ledger reset.
type FirstSeen map[string]int64

// Clone returns a deep copy. A nil receiver clones to an empty map so
// callers can mutate the result unconditionally.
func (f FirstSeen) Clone() FirstSeen {
	out := make(FirstSeen, len(f))
	for id, ms := range f {
		out[id] = ms
	}
	return out
}

// Pin is a captured geographic coordinate for a contact.
//
// INVARIANT: at most one pin per contact; a later capture overwrites.
type Pin struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	CapturedAt int64   `json:"captured_at"`
}

// Pins maps contact identifier → pin.
type Pins map[string]Pin

// Clone returns a deep copy.
func (p Pins) Clone() Pins {
	out := make(Pins, len(p))
	for id, pin := range p {
		out[id] = pin
	}
	return out
}

// Tags maps contact identifier → user-entered tag set. Stored as sorted
// slices for stable encoding; duplicates within a contact are collapsed.
type Tags map[string][]string

// Clone returns a deep copy.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for id, tags := range t {
		cp := make([]string, len(tags))
		copy(cp, tags)
		out[id] = cp
	}
	return out
}

// With returns a copy of t with tag added to id's set. Adding an existing
// tag is a no-op; the stored slice stays sorted.
func (t Tags) With(id, tag string) Tags {
	out := t.Clone()
	for _, existing := range out[id] {
		if existing == tag {
			return out
		}
	}
	next := append(out[id], tag)
	sort.Strings(next)
	out[id] = next
	return out
}

// Without returns a copy of t with tag removed from id's set. Removing the
// last tag removes the id entry entirely.
func (t Tags) Without(id, tag string) Tags {
	out := t.Clone()
	current, ok := out[id]
	if !ok {
		return out
	}
	next := current[:0:0]
	for _, existing := range current {
		if existing != tag {
			next = append(next, existing)
		}
	}
	if len(next) == 0 {
		delete(out, id)
		return out
	}
	out[id] = next
	return out
}
