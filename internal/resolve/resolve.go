// Package resolve computes the single authoritative "when was this contact
// added" instant from the two available evidence sources: platform-reported
// creation metadata and the app-managed first-seen ledger.
package resolve

import (
	"math"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
	"whenmet/internal/normalize"
)

// Unknown is the sentinel for "no creation time could be resolved".
//
// It is the lowest representable instant rather than zero so that a real
// epoch-zero timestamp can never collide with it. Sort and display treat it
// specially; it is a valid, displayable state.
const Unknown int64 = math.MinInt64

// Known reports whether ms is a real resolved instant.
func Known(ms int64) bool {
	return ms != Unknown
}

// Resolve returns the contact's creation instant in epoch milliseconds.
//
// Resolution order:
//  1. creation metadata keyed by the contact's normalized primary phone
//     number, regardless of ledger content
//  2. the first-seen ledger entry for the contact identifier
//  3. Unknown
//
// Pure and deterministic given its inputs; no side effects.
func Resolve(c device.Contact, meta map[string]int64, firstSeen ledger.FirstSeen) int64 {
	if phone := normalize.Phone(c.PrimaryPhone()); phone != "" {
		if ms, ok := meta[phone]; ok && ms != 0 {
			return ms
		}
	}
	if ms, ok := firstSeen[c.ID]; ok {
		return ms
	}
	return Unknown
}

// MetadataMap builds the normalized phone → creation-instant map from raw
// platform records. Free-form numbers are reduced to digits; records with no
// creation instant are skipped; when several records normalize to the same
// number the earliest instant wins.
func MetadataMap(records []device.PhoneRecord) map[string]int64 {
	out := make(map[string]int64, len(records))
	for _, rec := range records {
		phone := normalize.Phone(rec.Phone)
		if phone == "" || rec.Created == 0 {
			continue
		}
		if existing, ok := out[phone]; !ok || rec.Created < existing {
			out[phone] = rec.Created
		}
	}
	return out
}
