// Package testutil provides deterministic fakes for the device capability
// boundary plus a settable clock. Every fake models capability absence and
// failure as first-class configurations, mirroring how the engine is
// expected to degrade.
package testutil

import (
	"context"
	"sync"

	"whenmet/internal/device"
)

// Directory is a fake contact directory backed by a slice.
type Directory struct {
	mu         sync.Mutex
	Permission device.Permission
	// GrantOnRequest controls what RequestPermission resolves to when the
	// current status is undetermined.
	GrantOnRequest bool
	Contacts       []device.Contact
	// ListErr, when set, makes ListContacts fail.
	ListErr error
}

var _ device.Directory = (*Directory)(nil)

// NewDirectory creates a granted directory with the given contacts.
func NewDirectory(contacts ...device.Contact) *Directory {
	return &Directory{Permission: device.PermissionGranted, Contacts: contacts}
}

func (d *Directory) PermissionStatus(ctx context.Context) (device.Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Permission, nil
}

func (d *Directory) RequestPermission(ctx context.Context) (device.Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Permission == device.PermissionUndetermined {
		if d.GrantOnRequest {
			d.Permission = device.PermissionGranted
		} else {
			d.Permission = device.PermissionDenied
		}
	}
	return d.Permission, nil
}

func (d *Directory) ListContacts(ctx context.Context) ([]device.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	out := make([]device.Contact, len(d.Contacts))
	copy(out, d.Contacts)
	return out, nil
}

// SetContacts replaces the directory contents.
func (d *Directory) SetContacts(contacts ...device.Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Contacts = contacts
}

// Locator is a fake location service that returns a fixed coordinate.
type Locator struct {
	mu         sync.Mutex
	Permission device.Permission
	Fix        device.Fix
	// Err, when set, makes CurrentFix fail.
	Err error
	// Hang, when set, makes CurrentFix block until the context expires,
	// modeling a fix that never resolves.
	Hang  bool
	Calls int
}

var _ device.Locator = (*Locator)(nil)

// NewLocator creates a granted locator pinned to fix.
func NewLocator(fix device.Fix) *Locator {
	return &Locator{Permission: device.PermissionGranted, Fix: fix}
}

func (l *Locator) PermissionStatus(ctx context.Context) (device.Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Permission, nil
}

func (l *Locator) RequestPermission(ctx context.Context) (device.Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Permission == device.PermissionUndetermined {
		l.Permission = device.PermissionGranted
	}
	return l.Permission, nil
}

func (l *Locator) CurrentFix(ctx context.Context, acc device.Accuracy) (device.Fix, error) {
	l.mu.Lock()
	l.Calls++
	hang, err, fix := l.Hang, l.Err, l.Fix
	l.mu.Unlock()

	if hang {
		<-ctx.Done()
		return device.Fix{}, ctx.Err()
	}
	if err != nil {
		return device.Fix{}, err
	}
	return fix, nil
}

// SetFix repins the locator.
func (l *Locator) SetFix(fix device.Fix) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Fix = fix
}

// Dates is a fake creation-metadata lookup.
type Dates struct {
	Records []device.PhoneRecord
	Err     error
}

var _ device.CreationDates = (*Dates)(nil)

func (d *Dates) PhoneCreationDates(ctx context.Context) ([]device.PhoneRecord, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]device.PhoneRecord, len(d.Records))
	copy(out, d.Records)
	return out, nil
}

// Blobs is an in-memory blob store.
type Blobs struct {
	mu sync.Mutex
	m  map[string][]byte
	// GetErr/SetErr, when set, make the corresponding operation fail.
	GetErr error
	SetErr error
}

var _ device.Blobs = (*Blobs)(nil)

// NewBlobs creates an empty in-memory blob store.
func NewBlobs() *Blobs {
	return &Blobs{m: make(map[string][]byte)}
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.GetErr != nil {
		return nil, false, b.GetErr
	}
	blob, ok := b.m[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, true, nil
}

func (b *Blobs) Set(ctx context.Context, key string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SetErr != nil {
		return b.SetErr
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	b.m[key] = cp
	return nil
}

// Put seeds a raw blob, bypassing error injection. Tests use it to plant
// malformed persisted state.
func (b *Blobs) Put(key string, blob []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = blob
}
