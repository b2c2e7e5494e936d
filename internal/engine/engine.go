// Package engine implements the event reconciliation core: the single-writer
// loop that merges directory-changed signals, native location captures, and
// user intents into one authoritative reconciled state.
//
// Thread-safety model:
//   - Enqueue (and the typed intent helpers): safe from any goroutine
//   - Run / RunUntilIdle: must be called from exactly one goroutine
//   - Snapshot: safe from any goroutine, returns a deep copy
//
// All mutations happen in the loop goroutine and commit a whole new State
// computed from the latest previous State, so two rapid-fire events can
// never lose one another's writes even when a handler suspends on a
// capability call in between.
//
// Error policy is log and continue: a failed location fix, directory
// enumeration, or metadata lookup degrades to "no pin / no metadata / state
// preserved" and is never fatal.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
	"whenmet/internal/normalize"
	"whenmet/internal/policy"
	"whenmet/internal/resolve"
)

// DefaultFixTimeout bounds a balanced-accuracy location fix. A fix that has
// not resolved by then is abandoned and the contacts stay pinless.
const DefaultFixTimeout = 10 * time.Second

// Engine is the single-writer reconciliation loop.
type Engine struct {
	dir     device.Directory
	loc     device.Locator
	dates   device.CreationDates
	records *ledger.Store

	queue      *eventQueue
	now        func() time.Time
	fixTimeout time.Duration
	accuracy   device.Accuracy
	tokens     TokenGenerator

	mu    sync.RWMutex
	state *State
}

// Option configures the engine.
type Option func(*Engine)

// WithNow overrides the wall clock. Tests pin it for exact stamps.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFixTimeout bounds location fix acquisition.
func WithFixTimeout(d time.Duration) Option {
	return func(e *Engine) { e.fixTimeout = d }
}

// WithAccuracy sets the accuracy tier for pin capture fixes.
func WithAccuracy(acc device.Accuracy) Option {
	return func(e *Engine) { e.accuracy = acc }
}

// WithTokenGenerator overrides the fetch correlation token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// New creates an engine over the given capabilities. loc and dates may be
// nil: absence is a valid configuration that degrades to pinless contacts
// and ledger-only resolution. records may be nil for a purely in-memory
// engine (tests); then nothing is persisted.
func New(dir device.Directory, loc device.Locator, dates device.CreationDates, records *ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		dir:        dir,
		loc:        loc,
		dates:      dates,
		records:    records,
		queue:      newEventQueue(),
		now:        time.Now,
		fixTimeout: DefaultFixTimeout,
		accuracy:   device.AccuracyBalanced,
		tokens:     UUIDv7Generator{},
		state:      NewState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue submits an event for processing by the loop.
// Thread-safe: may be called from any goroutine.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// Typed intent helpers. Each enqueues one event and returns whether the
// engine accepted it.

func (e *Engine) Bootstrap() bool        { return e.Enqueue(Event{Kind: EventBootstrap}) }
func (e *Engine) DirectoryChanged() bool { return e.Enqueue(Event{Kind: EventDirectoryChanged}) }
func (e *Engine) Refresh() bool          { return e.Enqueue(Event{Kind: EventRefresh}) }

// Prepare is a bootstrap without the initial fetch. Callers that follow up
// with a directory-changed signal in the same drain use it, so the change
// handler computes its new-contact delta against the persisted ledger rather
// than one a bootstrap fetch already stamped.
func (e *Engine) Prepare() bool { return e.Enqueue(Event{Kind: EventBootstrap, LoadOnly: true}) }

func (e *Engine) ContactAdded(c Capture) bool {
	return e.Enqueue(Event{Kind: EventContactAdded, Capture: &c})
}

func (e *Engine) ChooseMode(mode ledger.Mode) bool {
	return e.Enqueue(Event{Kind: EventChooseMode, Mode: string(mode)})
}

func (e *Engine) AddTag(id, tag string) bool {
	return e.Enqueue(Event{Kind: EventAddTag, Tag: &TagChange{ID: id, Tag: tag}})
}

func (e *Engine) RemoveTag(id, tag string) bool {
	return e.Enqueue(Event{Kind: EventRemoveTag, Tag: &TagChange{ID: id, Tag: tag}})
}

func (e *Engine) SetSearch(text string) bool {
	return e.Enqueue(Event{Kind: EventSetSearch, Search: text})
}

// Snapshot returns a deep copy of the current reconciled state.
// Thread-safe; the copy is the caller's to mutate.
func (e *Engine) Snapshot() *State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// QueueLen returns the number of pending events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Stop closes the queue, which makes Run return once drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run starts the single-writer event loop.
// Blocks until the context is cancelled or Stop is called.
// Must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("reconciler starting")

	for {
		ev, ok := e.queue.TryDequeue()
		if ok {
			if err := e.processEvent(ctx, ev); err != nil {
				// Log and continue: no event is allowed to take the loop down.
				slog.Error("event processing failed", "kind", ev.Kind, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("reconciler stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// Two things land here: the coalesced enqueue token and the
			// channel closing on queue shutdown. A stale token from an
			// already-drained enqueue must not end the loop, so only a
			// closed and drained queue stops it.
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("reconciler stopping: queue closed")
				return nil
			}
		}
	}
}

// RunUntilIdle processes queued events until the queue is empty, then
// returns. The CLI uses it for one-shot commands; tests use it to drive the
// loop deterministically. Same single-writer constraint as Run.
func (e *Engine) RunUntilIdle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := e.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := e.processEvent(ctx, ev); err != nil {
			slog.Error("event processing failed", "kind", ev.Kind, "error", err)
		}
	}
}

func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventBootstrap:
		e.handleBootstrap(ctx, ev.LoadOnly)
		return nil
	case EventDirectoryChanged:
		e.handleDirectoryChanged(ctx)
		return nil
	case EventRefresh:
		e.fetch(ctx)
		return nil
	case EventContactAdded:
		if ev.Capture == nil {
			return fmt.Errorf("contact-added event missing capture payload")
		}
		e.handleContactAdded(ctx, *ev.Capture)
		return nil
	case EventChooseMode:
		return e.handleChooseMode(ctx, ledger.Mode(ev.Mode))
	case EventAddTag, EventRemoveTag:
		if ev.Tag == nil {
			return fmt.Errorf("tag event missing payload")
		}
		e.handleTag(ctx, *ev.Tag, ev.Kind == EventAddTag)
		return nil
	case EventSetSearch:
		e.commit(func(next *State) { next.Search = ev.Search })
		return nil
	default:
		return fmt.Errorf("unknown event kind: %d", ev.Kind)
	}
}

// handleBootstrap loads persisted records, checks permissions, loads
// creation metadata, and, unless loadOnly, runs the initial fetch. Safe to
// run again at any time; a concurrent in-flight run only causes a redundant
// refetch.
func (e *Engine) handleBootstrap(ctx context.Context, loadOnly bool) {
	if e.records != nil {
		fs := e.records.LoadFirstSeen(ctx)
		tags := e.records.LoadTags(ctx)
		pins := e.records.LoadPins(ctx)
		imp := e.records.LoadImportState(ctx)
		e.commit(func(next *State) {
			next.FirstSeen = fs
			next.Tags = tags
			next.Pins = pins
			next.Import = imp
		})
	}

	contactsPerm := e.ensurePermission(ctx, directoryPermission{e.dir})
	locationPerm := e.ensurePermission(ctx, locatorPermission{e.loc})

	meta := map[string]int64{}
	if e.dates != nil {
		recs, err := e.dates.PhoneCreationDates(ctx)
		if err != nil {
			slog.Warn("creation metadata lookup failed, falling back to ledger", "error", err)
		} else {
			meta = resolve.MetadataMap(recs)
		}
	}

	e.commit(func(next *State) {
		next.ContactsPermission = contactsPerm
		next.LocationPermission = locationPerm
		next.Meta = meta
	})

	slog.Info("bootstrap complete",
		"contacts_permission", contactsPerm,
		"location_permission", locationPerm,
		"metadata_entries", len(meta),
	)

	if !loadOnly && contactsPerm == device.PermissionGranted {
		e.fetch(ctx)
	}
}

// handleDirectoryChanged re-enumerates the directory, computes the
// new-contact delta, opportunistically captures one location fix for the
// whole delta, and refetches.
func (e *Engine) handleDirectoryChanged(ctx context.Context) {
	cur := e.Snapshot()
	if e.dir == nil || cur.ContactsPermission != device.PermissionGranted {
		return
	}

	contacts, err := e.dir.ListContacts(ctx)
	if err != nil {
		slog.Warn("directory enumeration failed, keeping current state", "error", err)
		return
	}

	newIDs := policy.NewIDs(cur.FirstSeen, contacts)
	if len(newIDs) > 0 {
		slog.Info("new contacts detected", "count", len(newIDs))
		e.capturePins(ctx, newIDs)
	}

	e.fetch(ctx)
}

// capturePins requests one balanced-accuracy fix and, on success, stamps a
// pin for every id and a first-seen entry only where absent. This fallback
// path must not overwrite an existing first-seen time; only the
// authoritative capture event may do that.
func (e *Engine) capturePins(ctx context.Context, ids []string) {
	if e.loc == nil {
		return
	}
	if perm := e.Snapshot().LocationPermission; perm != device.PermissionGranted {
		slog.Debug("location permission not granted, keeping contacts pinless", "permission", perm)
		return
	}

	fixCtx, cancel := context.WithTimeout(ctx, e.fixTimeout)
	defer cancel()

	fix, err := e.loc.CurrentFix(fixCtx, e.accuracy)
	if err != nil {
		slog.Warn("location fix failed, keeping contacts pinless", "error", err)
		return
	}

	nowMs := normalize.Millis(e.now())
	next := e.commit(func(next *State) {
		for _, id := range ids {
			next.Pins[id] = ledger.Pin{Latitude: fix.Latitude, Longitude: fix.Longitude, CapturedAt: nowMs}
			if _, ok := next.FirstSeen[id]; !ok {
				next.FirstSeen[id] = nowMs
			}
		}
	})
	e.persist(ctx, next, ledger.KeyPins, ledger.KeyFirstSeen)
}

// handleContactAdded applies a native capture: unlike the fallback path,
// this source is authoritative and overwrites both first-seen and pin.
func (e *Engine) handleContactAdded(ctx context.Context, c Capture) {
	ts := c.Timestamp
	if ts <= 0 {
		ts = normalize.Millis(e.now())
	}

	next := e.commit(func(next *State) {
		next.FirstSeen[c.ID] = ts
		next.Pins[c.ID] = ledger.Pin{Latitude: c.Latitude, Longitude: c.Longitude, CapturedAt: ts}
	})
	e.persist(ctx, next, ledger.KeyFirstSeen, ledger.KeyPins)

	slog.Info("contact capture applied", "id", c.ID, "captured_at", ts)

	e.fetch(ctx)
}

// handleChooseMode performs the once-only unset → mode transition.
// A second choice is ignored: the transition is terminal for the lifetime
// of the installation.
func (e *Engine) handleChooseMode(ctx context.Context, mode ledger.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid import mode %q", mode)
	}

	cur := e.Snapshot()
	if cur.Import.Mode != ledger.ModeUnset {
		slog.Warn("import mode already chosen, ignoring", "current", string(cur.Import.Mode), "requested", string(mode))
		return nil
	}

	next := e.commit(func(next *State) { next.Import.Mode = mode })
	e.persist(ctx, next, ledger.KeyImportMode)

	slog.Info("import mode chosen", "mode", string(mode))

	e.fetch(ctx)
	return nil
}

func (e *Engine) handleTag(ctx context.Context, tc TagChange, add bool) {
	next := e.commit(func(next *State) {
		if add {
			next.Tags = next.Tags.With(tc.ID, tc.Tag)
		} else {
			next.Tags = next.Tags.Without(tc.ID, tc.Tag)
		}
	})
	e.persist(ctx, next, ledger.KeyTags)
}

// fetch enumerates the directory, applies the import policy, and commits
// the stamped ledger and visible set. Redundant fetches are idempotent and
// allowed to race; on enumeration failure the current state is preserved
// and only the refreshing flag is cleared.
func (e *Engine) fetch(ctx context.Context) {
	token := e.tokens.Generate()

	cur := e.Snapshot()
	if e.dir == nil || cur.ContactsPermission != device.PermissionGranted {
		slog.Debug("fetch skipped: directory unavailable", "token", token, "permission", cur.ContactsPermission)
		return
	}

	e.commit(func(next *State) { next.Refreshing = true })

	contacts, err := e.dir.ListContacts(ctx)
	if err != nil {
		slog.Warn("fetch failed, keeping current state", "token", token, "error", err)
		e.commit(func(next *State) { next.Refreshing = false })
		return
	}

	nowMs := normalize.Millis(e.now())

	// Policy is applied inside the commit so it reads the latest ledger,
	// not a snapshot captured before the enumeration suspension point.
	next := e.commit(func(next *State) {
		res := policy.Apply(next.Import, next.FirstSeen, contacts, nowMs)
		next.Contacts = contacts
		next.FirstSeen = res.FirstSeen
		next.Import = res.Import
		next.Visible = res.Visible
		next.Refreshing = false
	})
	e.persist(ctx, next, ledger.KeyFirstSeen, ledger.KeyImportMode, ledger.KeyImportCutoff)

	slog.Debug("fetch complete",
		"token", token,
		"contacts", len(next.Contacts),
		"visible", len(next.Visible),
		"mode", string(next.Import.Mode),
	)
}

// commit atomically replaces the state with a mutated deep copy of the
// latest state and returns the committed value.
func (e *Engine) commit(mutate func(next *State)) *State {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.state.Clone()
	mutate(next)
	e.state = next
	return next
}

// persist writes the named records behind the committed state. Write-behind:
// failures are logged inside the ledger store and never roll back memory.
func (e *Engine) persist(ctx context.Context, st *State, keys ...string) {
	if e.records == nil {
		return
	}
	for _, key := range keys {
		switch key {
		case ledger.KeyFirstSeen:
			e.records.SaveFirstSeen(ctx, st.FirstSeen)
		case ledger.KeyTags:
			e.records.SaveTags(ctx, st.Tags)
		case ledger.KeyPins:
			e.records.SavePins(ctx, st.Pins)
		case ledger.KeyImportMode, ledger.KeyImportCutoff:
			e.records.SaveImportState(ctx, st.Import)
		}
	}
}

// ensurePermission reads a capability's permission, requesting it when
// still undetermined. A nil capability reads as denied.
func (e *Engine) ensurePermission(ctx context.Context, src permissionSource) device.Permission {
	if src.absent() {
		return device.PermissionDenied
	}
	perm, err := src.status(ctx)
	if err != nil {
		slog.Warn("permission status check failed", "error", err)
		return device.PermissionUndetermined
	}
	if perm != device.PermissionUndetermined {
		return perm
	}
	perm, err = src.request(ctx)
	if err != nil {
		slog.Warn("permission request failed", "error", err)
		return device.PermissionUndetermined
	}
	return perm
}

// permissionSource abstracts over the two capabilities that gate on a
// permission, so bootstrap can treat them uniformly.
type permissionSource interface {
	absent() bool
	status(ctx context.Context) (device.Permission, error)
	request(ctx context.Context) (device.Permission, error)
}

type directoryPermission struct{ d device.Directory }

func (p directoryPermission) absent() bool { return p.d == nil }
func (p directoryPermission) status(ctx context.Context) (device.Permission, error) {
	return p.d.PermissionStatus(ctx)
}
func (p directoryPermission) request(ctx context.Context) (device.Permission, error) {
	return p.d.RequestPermission(ctx)
}

type locatorPermission struct{ l device.Locator }

func (p locatorPermission) absent() bool { return p.l == nil }
func (p locatorPermission) status(ctx context.Context) (device.Permission, error) {
	return p.l.PermissionStatus(ctx)
}
func (p locatorPermission) request(ctx context.Context) (device.Permission, error) {
	return p.l.RequestPermission(ctx)
}
