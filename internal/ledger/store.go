package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"whenmet/internal/device"
)

// Store is the typed wrapper around the blob persistence capability.
//
// Load methods never return an error: a missing, unreadable, or malformed
// blob yields the record's zero value and a log line. Persisted state is
// durability only, not ground truth; the in-memory state owns the current
// session.
type Store struct {
	blobs device.Blobs
}

// NewStore wraps a blob capability.
func NewStore(blobs device.Blobs) *Store {
	return &Store{blobs: blobs}
}

// LoadFirstSeen reads the first-seen map, or an empty map on any failure.
func (s *Store) LoadFirstSeen(ctx context.Context) FirstSeen {
	out := FirstSeen{}
	if !s.loadJSON(ctx, KeyFirstSeen, &out) || out == nil {
		return FirstSeen{}
	}
	return out
}

// SaveFirstSeen writes the first-seen map.
func (s *Store) SaveFirstSeen(ctx context.Context, f FirstSeen) {
	s.saveJSON(ctx, KeyFirstSeen, f)
}

// LoadTags reads the tag map, or an empty map on any failure.
func (s *Store) LoadTags(ctx context.Context) Tags {
	out := Tags{}
	if !s.loadJSON(ctx, KeyTags, &out) || out == nil {
		return Tags{}
	}
	return out
}

// SaveTags writes the tag map.
func (s *Store) SaveTags(ctx context.Context, t Tags) {
	s.saveJSON(ctx, KeyTags, t)
}

// LoadPins reads the pin map, or an empty map on any failure.
func (s *Store) LoadPins(ctx context.Context) Pins {
	out := Pins{}
	if !s.loadJSON(ctx, KeyPins, &out) || out == nil {
		return Pins{}
	}
	return out
}

// SavePins writes the pin map.
func (s *Store) SavePins(ctx context.Context, p Pins) {
	s.saveJSON(ctx, KeyPins, p)
}

// LoadImportState reads the import mode and cutoff records.
//
// An unrecognized mode decodes to ModeUnset. A non-numeric cutoff decodes to
// zero, which fails closed: new-only re-seeds on the next fetch and nothing
// is visible until then, rather than showing everything.
func (s *Store) LoadImportState(ctx context.Context) ImportState {
	st := ImportState{}

	if blob, ok := s.get(ctx, KeyImportMode); ok {
		mode := Mode(strings.TrimSpace(string(blob)))
		if mode.Valid() {
			st.Mode = mode
		} else if mode != ModeUnset {
			slog.Warn("unrecognized import mode, treating as unset", "key", KeyImportMode, "value", string(blob))
		}
	}

	if blob, ok := s.get(ctx, KeyImportCutoff); ok {
		cutoff, err := strconv.ParseInt(strings.TrimSpace(string(blob)), 10, 64)
		if err != nil {
			slog.Warn("malformed import cutoff, treating as unseeded", "key", KeyImportCutoff, "error", err)
		} else {
			st.Cutoff = cutoff
		}
	}

	return st
}

// SaveImportState writes the import mode and cutoff records.
func (s *Store) SaveImportState(ctx context.Context, st ImportState) {
	s.set(ctx, KeyImportMode, []byte(st.Mode))
	s.set(ctx, KeyImportCutoff, []byte(strconv.FormatInt(st.Cutoff, 10)))
}

// Reset clears all five records back to their zero values. This is the only
// sanctioned path that clears first-seen entries.
func (s *Store) Reset(ctx context.Context) {
	s.SaveFirstSeen(ctx, FirstSeen{})
	s.SaveTags(ctx, Tags{})
	s.SavePins(ctx, Pins{})
	s.SaveImportState(ctx, ImportState{})
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	blob, ok, err := s.blobs.Get(ctx, key)
	if err != nil {
		slog.Warn("blob read failed, treating as absent", "key", key, "error", err)
		return nil, false
	}
	return blob, ok
}

func (s *Store) set(ctx context.Context, key string, blob []byte) {
	// Fire-and-forget relative to in-memory state: a persistence failure is
	// logged, never rolled back.
	if err := s.blobs.Set(ctx, key, blob); err != nil {
		slog.Error("blob write failed", "key", key, "error", err)
	}
}

// loadJSON decodes the blob under key into out. Returns false when the blob
// is absent or malformed; a partial decode must not leak to the caller.
func (s *Store) loadJSON(ctx context.Context, key string, out any) bool {
	blob, ok := s.get(ctx, key)
	if !ok || len(blob) == 0 {
		return false
	}
	if err := json.Unmarshal(blob, out); err != nil {
		slog.Warn("malformed blob, resetting record to default", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) saveJSON(ctx context.Context, key string, v any) {
	blob, err := json.Marshal(v)
	if err != nil {
		slog.Error("blob encode failed", "key", key, "error", err)
		return
	}
	s.set(ctx, key, blob)
}
