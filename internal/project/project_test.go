package project_test

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
	"whenmet/internal/project"
	"whenmet/internal/resolve"
)

func contact(id, name string) device.Contact {
	return device.Contact{ID: id, Name: name}
}

func ids(items []project.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestList_SortKnownDescUnknownAfter(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			contact("a", "Ana"),
			contact("b", "Ben"),
			contact("c", "Cora"),
		},
		Visible:   []string{"a", "b", "c"},
		FirstSeen: ledger.FirstSeen{"a": 100, "b": 200},
	}

	items := project.List(in)
	assert.Equal(t, []string{"b", "a", "c"}, ids(items))
	assert.Equal(t, resolve.Unknown, items[2].Added)
	assert.False(t, items[2].Known())
}

func TestList_UnknownsAlphabeticalEmptyNameLast(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			contact("n1", ""),
			contact("n2", "zoe"),
			contact("n3", "Ana"),
		},
		Visible: []string{"n1", "n2", "n3"},
	}

	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(project.List(in)))
}

func TestList_TiesBrokenByNameThenID(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			contact("z", "Ben"),
			contact("a", "Ben"),
			contact("m", "Ana"),
		},
		Visible:   []string{"z", "a", "m"},
		FirstSeen: ledger.FirstSeen{"z": 100, "a": 100, "m": 100},
	}

	assert.Equal(t, []string{"m", "a", "z"}, ids(project.List(in)))
}

func TestList_MetadataBeatsLedger(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			{ID: "a", Name: "Ana", PhoneNumbers: []string{"+1 (555) 010-2233"}},
		},
		Visible:   []string{"a"},
		Meta:      map[string]int64{"15550102233": 50},
		FirstSeen: ledger.FirstSeen{"a": 100},
	}

	items := project.List(in)
	require.Len(t, items, 1)
	assert.Equal(t, int64(50), items[0].Added)
}

func TestList_SearchMatchesNameOrTag(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			contact("id1", "Ana"),
			contact("id2", "Collins"),
			contact("id3", "Ben"),
		},
		Visible: []string{"id1", "id2", "id3"},
		Tags:    ledger.Tags{"id1": {"college"}},
		Search:  "coll",
	}

	got := ids(project.List(in))
	assert.Contains(t, got, "id1", "tag match survives even when the name does not")
	assert.Contains(t, got, "id2")
	assert.NotContains(t, got, "id3")
}

func TestList_SearchIsCaselessAndCompositionInsensitive(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{contact("e", "Éva")},
		Visible:  []string{"e"},
		Search:   "év",
	}

	assert.Equal(t, []string{"e"}, ids(project.List(in)))
}

func TestList_NilVisibleProjectsEmpty(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{contact("a", "Ana")},
	}

	assert.Empty(t, project.List(in))
}

func TestList_VisibleIDMissingFromDirectorySkipped(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{contact("a", "Ana")},
		Visible:  []string{"a", "gone"},
	}

	assert.Equal(t, []string{"a"}, ids(project.List(in)))
}

func TestViewport_NoPinsUsesFallback(t *testing.T) {
	fallback := project.Region{Latitude: 52.5, Longitude: 13.4, LatitudeDelta: 0.5, LongitudeDelta: 0.5}

	got := project.Viewport(ledger.Pins{}, fallback, 0.01)
	assert.Equal(t, fallback, got)
}

func TestViewport_BoundingBoxMidpointAndSpans(t *testing.T) {
	pins := ledger.Pins{
		"a": {Latitude: 10, Longitude: 10},
		"b": {Latitude: 10, Longitude: 20},
	}

	got := project.Viewport(pins, project.Region{}, 0.01)
	assert.Equal(t, 10.0, got.Latitude)
	assert.Equal(t, 15.0, got.Longitude)
	assert.InDelta(t, 10*1.5, got.LongitudeDelta, 1e-9)
	// Zero latitude span falls back to the minimum floor.
	assert.InDelta(t, 0.01*1.5, got.LatitudeDelta, 1e-9)
}

func TestViewport_CoincidentPinsNonDegenerate(t *testing.T) {
	pins := ledger.Pins{
		"a": {Latitude: 48.85, Longitude: 2.35},
		"b": {Latitude: 48.85, Longitude: 2.35},
	}

	got := project.Viewport(pins, project.Region{}, 0.01)
	assert.Equal(t, 48.85, got.Latitude)
	assert.Equal(t, 2.35, got.Longitude)
	assert.Greater(t, got.LatitudeDelta, 0.0)
	assert.Greater(t, got.LongitudeDelta, 0.0)
}

func TestGeoURL(t *testing.T) {
	pin := ledger.Pin{Latitude: 48.85, Longitude: 2.35}

	assert.Equal(t, "geo:48.85,2.35", project.GeoURL(pin, ""))
	assert.Equal(t, "geo:48.85,2.35?q=48.85%2C2.35%28Ana%29", project.GeoURL(pin, "Ana"))
}

func TestMapsURL(t *testing.T) {
	pin := ledger.Pin{Latitude: 48.85, Longitude: 2.35}

	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=48.85%2C2.35", project.MapsURL(pin))
}

func TestList_Golden(t *testing.T) {
	in := project.Input{
		Contacts: []device.Contact{
			{ID: "a", Name: "Ana", PhoneNumbers: []string{"555-0100"}},
			contact("b", "Ben"),
			contact("c", "Cora"),
			contact("d", ""),
		},
		Visible:   []string{"a", "b", "c", "d"},
		Meta:      map[string]int64{"5550100": 1700000000000},
		FirstSeen: ledger.FirstSeen{"b": 1710000000000},
		Tags:      ledger.Tags{"a": {"college"}},
		Pins:      ledger.Pins{"b": {Latitude: 10, Longitude: 20, CapturedAt: 1710000000000}},
	}

	blob, err := json.MarshalIndent(project.List(in), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "projected_list", append(blob, '\n'))
}
