// Package normalize provides canonical forms for the values the rest of the
// system keys on: phone numbers, display text, and epoch-millisecond instants.
//
// All functions are pure. Callers are expected to normalize at the boundary
// (capability adapters, search input) so that internal maps are only ever
// keyed by canonical values.
package normalize

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Phone reduces a free-form phone number to its digit-only canonical form.
//
// "+1 (555) 010-2233" and "15550102233" normalize to the same key, which is
// what lets platform creation-metadata records (free-form numbers) match
// directory contacts.
//
// Returns "" when the input contains no digits.
func Phone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fold returns a caseless, NFC-normalized form of s for comparisons.
//
// Used for substring search and name ordering so that "Éva" and "éva"
// compare equal regardless of the composition form the directory returned.
//
// A new Caser is constructed per call: cases.Caser carries internal state
// and must not be shared between goroutines.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Millis converts a time to the epoch-millisecond form used throughout the
// ledger and pin records.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts an epoch-millisecond instant back to a time.Time
// in the local zone.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
