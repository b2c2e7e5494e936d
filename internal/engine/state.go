package engine

import (
	"whenmet/internal/device"
	"whenmet/internal/ledger"
)

// State is the complete reconciled state of the system at one instant.
//
// Every mutation replaces the whole value via a pure previous→next
// transform committed under the engine's lock, so a partial write is never
// observable. Readers get deep copies; no component may treat its copy as
// ground truth across commits.
type State struct {
	// Contacts is the directory enumeration from the last successful fetch.
	Contacts []device.Contact
	// Meta maps normalized phone number → platform-reported creation
	// instant. Loaded once per bootstrap; empty when the capability is
	// absent or failed.
	Meta map[string]int64

	FirstSeen ledger.FirstSeen
	Tags      ledger.Tags
	Pins      ledger.Pins
	Import    ledger.ImportState

	// Visible lists the contact identifiers the import policy allows the
	// projection to surface, in directory order. Nil until a fetch has run
	// under a chosen mode.
	Visible []string

	Search string

	ContactsPermission device.Permission
	LocationPermission device.Permission

	// Refreshing is true while a fetch is in flight. Cleared on both
	// success and failure.
	Refreshing bool
}

// NewState returns an empty state with all maps allocated.
func NewState() *State {
	return &State{
		Meta:      map[string]int64{},
		FirstSeen: ledger.FirstSeen{},
		Tags:      ledger.Tags{},
		Pins:      ledger.Pins{},
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		Meta:               make(map[string]int64, len(s.Meta)),
		FirstSeen:          s.FirstSeen.Clone(),
		Tags:               s.Tags.Clone(),
		Pins:               s.Pins.Clone(),
		Import:             s.Import,
		Search:             s.Search,
		ContactsPermission: s.ContactsPermission,
		LocationPermission: s.LocationPermission,
		Refreshing:         s.Refreshing,
	}
	for k, v := range s.Meta {
		out.Meta[k] = v
	}
	if s.Contacts != nil {
		out.Contacts = make([]device.Contact, len(s.Contacts))
		for i, c := range s.Contacts {
			out.Contacts[i] = cloneContact(c)
		}
	}
	if s.Visible != nil {
		out.Visible = make([]string, len(s.Visible))
		copy(out.Visible, s.Visible)
	}
	return out
}

func cloneContact(c device.Contact) device.Contact {
	if c.PhoneNumbers != nil {
		phones := make([]string, len(c.PhoneNumbers))
		copy(phones, c.PhoneNumbers)
		c.PhoneNumbers = phones
	}
	return c
}
