// Package project derives the rendering-layer read model: the filtered,
// sorted contact list and the map viewport. Everything here is a pure
// function of a reconciled state snapshot; the package holds no state and
// performs no I/O, so it can be recomputed on every relevant change.
package project

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
	"whenmet/internal/normalize"
	"whenmet/internal/resolve"
)

// Item is one projected contact row.
type Item struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Added is the resolved creation instant in epoch milliseconds, or
	// resolve.Unknown when neither metadata nor the ledger knows it.
	Added int64       `json:"added" yaml:"added"`
	Tags  []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
	Pin   *ledger.Pin `json:"pin,omitempty" yaml:"pin,omitempty"`
}

// Known reports whether the item has a resolved creation instant.
func (it Item) Known() bool {
	return resolve.Known(it.Added)
}

// Input bundles the state a projection reads. Visible gates which contacts
// are considered at all: nil means no fetch has run under a chosen mode yet
// and the list projects empty.
type Input struct {
	Contacts  []device.Contact
	Visible   []string
	Meta      map[string]int64
	FirstSeen ledger.FirstSeen
	Tags      ledger.Tags
	Pins      ledger.Pins
	Search    string
}

// List projects the visible contacts into display order.
//
// Filter: when Search is non-empty, a contact survives if its folded name or
// any folded tag contains the folded search text as a substring.
//
/// Sort: known creation instants first, newest to oldest; unknown after all
// known, alphabetically by folded name with empty names last; all ties broken
// by name, then by identifier for full determinism.
func List(in Input) []Item {
	byID := make(map[string]device.Contact, len(in.Contacts))
	for _, c := range in.Contacts {
		byID[c.ID] = c
	}

	search := normalize.Fold(in.Search)

	items := make([]Item, 0, len(in.Visible))
	for _, id := range in.Visible {
		c, ok := byID[id]
		if !ok {
			continue
		}
		it := Item{
			ID:    id,
			Name:  c.Name,
			Added: resolve.Resolve(c, in.Meta, in.FirstSeen),
			Tags:  in.Tags[id],
		}
		if pin, ok := in.Pins[id]; ok {
			it.Pin = &pin
		}
		if search != "" && !matches(it, search) {
			continue
		}
		items = append(items, it)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
	return items
}

func matches(it Item, foldedSearch string) bool {
	if containsFold(it.Name, foldedSearch) {
		return true
	}
	for _, tag := range it.Tags {
		if containsFold(tag, foldedSearch) {
			return true
		}
	}
	return false
}

func containsFold(s, foldedNeedle string) bool {
	return strings.Contains(normalize.Fold(s), foldedNeedle)
}

func less(a, b Item) bool {
	ak, bk := a.Known(), b.Known()
	switch {
	case ak && bk:
		if a.Added != b.Added {
			return a.Added > b.Added
		}
	case ak != bk:
		return ak
	default:
		// Both unknown: alphabetical by folded name, empty names last.
		an, bn := normalize.Fold(a.Name), normalize.Fold(b.Name)
		if (an == "") != (bn == "") {
			return bn == ""
		}
		if an != bn {
			return an < bn
		}
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.ID < b.ID
}

// Region is a map viewport: a center coordinate plus a span per axis.
type Region struct {
	Latitude       float64 `json:"latitude" yaml:"latitude"`
	Longitude      float64 `json:"longitude" yaml:"longitude"`
	LatitudeDelta  float64 `json:"latitude_delta" yaml:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitude_delta" yaml:"longitudeDelta"`
}

// SpanFactor pads the pin bounding box so pins never sit on the viewport
// edge.
const SpanFactor = 1.5

// Viewport computes the map region covering every pin.
//
// With no pins the fallback region is returned unchanged. Otherwise the
// region centers on the bounding-box midpoint and each delta is
// max(box span, minSpan) x 1.5, independently per axis; minSpan keeps the
// viewport non-degenerate when all pins coincide.
func Viewport(pins ledger.Pins, fallback Region, minSpan float64) Region {
	if len(pins) == 0 {
		return fallback
	}

	first := true
	var minLat, maxLat, minLng, maxLng float64
	for _, pin := range pins {
		if first {
			minLat, maxLat = pin.Latitude, pin.Latitude
			minLng, maxLng = pin.Longitude, pin.Longitude
			first = false
			continue
		}
		minLat = min(minLat, pin.Latitude)
		maxLat = max(maxLat, pin.Latitude)
		minLng = min(minLng, pin.Longitude)
		maxLng = max(maxLng, pin.Longitude)
	}

	return Region{
		Latitude:       (minLat + maxLat) / 2,
		Longitude:      (minLng + maxLng) / 2,
		LatitudeDelta:  max(maxLat-minLat, minSpan) * SpanFactor,
		LongitudeDelta: max(maxLng-minLng, minSpan) * SpanFactor,
	}
}

// GeoURL formats a pin as a geo: URI with the contact name as the label,
// the cross-platform handoff form for external map applications.
func GeoURL(pin ledger.Pin, label string) string {
	u := fmt.Sprintf("geo:%g,%g", pin.Latitude, pin.Longitude)
	if label == "" {
		return u
	}
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%g,%g(%s)", pin.Latitude, pin.Longitude, label))
	return u + "?" + q.Encode()
}

// MapsURL formats a pin as an https maps query for environments without a
// geo: handler.
func MapsURL(pin ledger.Pin) string {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("%g,%g", pin.Latitude, pin.Longitude))
	return "https://www.google.com/maps/search/?api=1&" + q.Encode()
}
