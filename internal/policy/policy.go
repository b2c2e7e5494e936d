// Package policy implements the two-state import policy that governs how
// the first-seen ledger is seeded and which contacts are visible.
//
// The policy is a pure function over (import state, ledger, directory, now).
// The engine commits its result atomically; nothing here touches storage.
//
// State machine: unset → import-all or unset → new-only, exactly once,
// irreversible for the lifetime of the installation.
package policy

import (
	"whenmet/internal/device"
	"whenmet/internal/ledger"
)

// Result is the outcome of applying the import policy to one directory
// fetch. FirstSeen is a fresh map (never an alias of the input); Visible
// lists contact identifiers in directory order.
type Result struct {
	FirstSeen ledger.FirstSeen
	Import    ledger.ImportState
	Visible   []string
}

// Apply stamps the ledger and filters visibility for one fetch at instant
// now (epoch milliseconds).
//
// unset: nothing is stamped and nothing is visible; the user has not chosen
// a policy yet, so the fetch is a no-op on the ledger.
//
// import-all: every directory contact absent from the ledger is stamped
// with now; the full directory is visible.
//
// new-only, first fetch (cutoff unseeded): the cutoff is captured as now,
// every current contact is stamped with the cutoff, and nothing is visible.
// Pre-existing contacts stay in the ledger forever so they are never
// re-flagged as new.
//
// new-only, later fetches: absent contacts are stamped with now; visibility
// is ledger entry strictly greater than the cutoff. A contact stamped
// exactly at the cutoff is permanently excluded.
func Apply(imp ledger.ImportState, firstSeen ledger.FirstSeen, contacts []device.Contact, now int64) Result {
	next := firstSeen.Clone()

	switch imp.Mode {
	case ledger.ModeImportAll:
		visible := make([]string, 0, len(contacts))
		for _, c := range contacts {
			if _, ok := next[c.ID]; !ok {
				next[c.ID] = now
			}
			visible = append(visible, c.ID)
		}
		return Result{FirstSeen: next, Import: imp, Visible: visible}

	case ledger.ModeNewOnly:
		if !imp.Seeded() {
			// First fetch after the mode was chosen: capture the cutoff once
			// and mark everything currently on the device as pre-existing.
			imp.Cutoff = now
			for _, c := range contacts {
				if _, ok := next[c.ID]; !ok {
					next[c.ID] = imp.Cutoff
				}
			}
			return Result{FirstSeen: next, Import: imp, Visible: []string{}}
		}

		visible := make([]string, 0, len(contacts))
		for _, c := range contacts {
			if _, ok := next[c.ID]; !ok {
				next[c.ID] = now
			}
			if next[c.ID] > imp.Cutoff {
				visible = append(visible, c.ID)
			}
		}
		return Result{FirstSeen: next, Import: imp, Visible: visible}

	default:
		return Result{FirstSeen: next, Import: imp, Visible: nil}
	}
}

// NewIDs returns the directory identifiers that have no ledger entry, in
// directory order. The reconciliation engine uses this delta to decide which
// contacts need a location capture.
func NewIDs(firstSeen ledger.FirstSeen, contacts []device.Contact) []string {
	var out []string
	for _, c := range contacts {
		if _, ok := firstSeen[c.ID]; !ok {
			out = append(out, c.ID)
		}
	}
	return out
}
