// Package device defines the capability boundary between the reconciliation
// engine and the platform it runs against: the contact directory, the
// location service, the creation-metadata lookup, and blob persistence.
//
// Every capability is an interface so that absence is a valid configuration:
// a nil Locator means "this platform cannot produce fixes", a nil
// CreationDates means "no platform metadata". The engine degrades rather
// than erroring when a capability is missing.
package device

import "context"

// Contact is a read-only view of a directory entry. The identifier is opaque
// and stable for the lifetime of the contact on the device; the directory
// owns the record, this system never mutates it.
type Contact struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	PhoneNumbers []string `json:"phones,omitempty" yaml:"phones,omitempty"`
}

// PrimaryPhone returns the contact's first non-empty phone number, or ""
// when the contact has none. Creation-metadata lookups key on the primary
// number only.
func (c Contact) PrimaryPhone() string {
	for _, n := range c.PhoneNumbers {
		if n != "" {
			return n
		}
	}
	return ""
}

// Permission is the tri-state result of a platform permission check.
type Permission int

const (
	// PermissionUndetermined means the user has not been asked yet.
	PermissionUndetermined Permission = iota
	// PermissionGranted means the capability may be used.
	PermissionGranted
	// PermissionDenied means the user refused; the capability must not be
	// requested again this session.
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Accuracy selects the cost/precision tradeoff for a location fix.
type Accuracy int

const (
	AccuracyLowest Accuracy = iota
	AccuracyLow
	// AccuracyBalanced is the tier used for contact pin capture: good enough
	// for a map pin, cheap enough to request opportunistically.
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
)

// ParseAccuracy maps a configuration string to an Accuracy tier.
// Unknown strings fall back to AccuracyBalanced.
func ParseAccuracy(s string) Accuracy {
	switch s {
	case "lowest":
		return AccuracyLowest
	case "low":
		return AccuracyLow
	case "high":
		return AccuracyHigh
	case "highest":
		return AccuracyHighest
	default:
		return AccuracyBalanced
	}
}

// Fix is a single geographic coordinate returned by the Locator.
type Fix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PhoneRecord is one entry from the platform creation-metadata lookup.
// Phone numbers are free-form and must be normalized by the caller.
// A zero Created/Modified means the platform did not report that instant.
type PhoneRecord struct {
	Phone    string `json:"phone" yaml:"phone"`
	Created  int64  `json:"created,omitempty" yaml:"created,omitempty"`
	Modified int64  `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Directory enumerates the device contact directory.
type Directory interface {
	PermissionStatus(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	ListContacts(ctx context.Context) ([]Contact, error)
}

// Locator produces one-shot location fixes. CurrentFix is best-effort: it
// may return an error, and on some platforms may simply never resolve, so
// callers must bound it with a context deadline.
type Locator interface {
	PermissionStatus(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentFix(ctx context.Context, acc Accuracy) (Fix, error)
}

// CreationDates is the best-effort platform lookup from phone numbers to
// contact-creation instants. An empty result is valid and common; the
// resolver falls back to the first-seen ledger.
type CreationDates interface {
	PhoneCreationDates(ctx context.Context) ([]PhoneRecord, error)
}

// Blobs is the persistence capability: named opaque blobs with exact
// round-trip semantics. It is used for durability only, never for logic;
// in-memory state is the source of truth within a session.
type Blobs interface {
	// Get returns the blob for key. The second return is false when the key
	// has never been set.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set durably stores blob under key, replacing any previous value.
	Set(ctx context.Context, key string, blob []byte) error
}
