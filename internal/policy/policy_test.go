package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whenmet/internal/device"
	"whenmet/internal/ledger"
)

func dir(ids ...string) []device.Contact {
	out := make([]device.Contact, len(ids))
	for i, id := range ids {
		out[i] = device.Contact{ID: id, Name: id}
	}
	return out
}

func TestApply_UnsetStampsNothing(t *testing.T) {
	res := Apply(ledger.ImportState{}, ledger.FirstSeen{"old": 10}, dir("old", "new"), 100)

	assert.Nil(t, res.Visible)
	assert.Equal(t, ledger.FirstSeen{"old": 10}, res.FirstSeen)
	assert.Equal(t, ledger.ImportState{}, res.Import)
}

func TestApply_ImportAllStampsAbsentAndShowsAll(t *testing.T) {
	imp := ledger.ImportState{Mode: ledger.ModeImportAll}
	res := Apply(imp, ledger.FirstSeen{"a": 50}, dir("a", "b", "c"), 100)

	assert.Equal(t, []string{"a", "b", "c"}, res.Visible)
	assert.Equal(t, ledger.FirstSeen{"a": 50, "b": 100, "c": 100}, res.FirstSeen)
}

func TestApply_ImportAllNeverRaisesExistingStamp(t *testing.T) {
	imp := ledger.ImportState{Mode: ledger.ModeImportAll}
	res := Apply(imp, ledger.FirstSeen{"a": 50}, dir("a"), 100)

	assert.Equal(t, int64(50), res.FirstSeen["a"])
}

func TestApply_NewOnlyFirstFetchSeedsCutoff(t *testing.T) {
	imp := ledger.ImportState{Mode: ledger.ModeNewOnly}
	res := Apply(imp, ledger.FirstSeen{}, dir("a", "b"), 100)

	assert.Empty(t, res.Visible)
	assert.Equal(t, int64(100), res.Import.Cutoff)
	assert.Equal(t, ledger.FirstSeen{"a": 100, "b": 100}, res.FirstSeen,
		"every pre-existing contact stamped at the cutoff")
}

func TestApply_NewOnlySubsequentFetchShowsOnlyNew(t *testing.T) {
	// Seed at t=100 with {a, b}.
	imp := ledger.ImportState{Mode: ledger.ModeNewOnly}
	seeded := Apply(imp, ledger.FirstSeen{}, dir("a", "b"), 100)
	require.Empty(t, seeded.Visible)

	// Contact x appears later.
	res := Apply(seeded.Import, seeded.FirstSeen, dir("a", "b", "x"), 200)

	assert.Equal(t, []string{"x"}, res.Visible)
	assert.Greater(t, res.FirstSeen["x"], seeded.Import.Cutoff)
}

func TestApply_NewOnlyCutoffStampPermanentlyExcluded(t *testing.T) {
	// A contact stamped exactly at the cutoff never becomes visible, even
	// after many fetches.
	imp := ledger.ImportState{Mode: ledger.ModeNewOnly, Cutoff: 100}
	fs := ledger.FirstSeen{"a": 100}

	for now := int64(200); now <= 400; now += 100 {
		res := Apply(imp, fs, dir("a"), now)
		assert.Empty(t, res.Visible)
		fs = res.FirstSeen
	}
	assert.Equal(t, int64(100), fs["a"], "pre-existing stamp retained forever")
}

func TestApply_NewOnlyUnseededReseedsAfterMalformedCutoff(t *testing.T) {
	// A malformed persisted cutoff loads as zero; the next fetch re-seeds
	// and fails closed to an empty visible list.
	imp := ledger.ImportState{Mode: ledger.ModeNewOnly, Cutoff: 0}
	res := Apply(imp, ledger.FirstSeen{"a": 42}, dir("a", "b"), 500)

	assert.Empty(t, res.Visible)
	assert.Equal(t, int64(500), res.Import.Cutoff)
	assert.Equal(t, int64(42), res.FirstSeen["a"], "existing stamps not raised by re-seed")
	assert.Equal(t, int64(500), res.FirstSeen["b"])
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	fs := ledger.FirstSeen{"a": 50}
	_ = Apply(ledger.ImportState{Mode: ledger.ModeImportAll}, fs, dir("a", "b"), 100)

	assert.Equal(t, ledger.FirstSeen{"a": 50}, fs)
}

func TestApply_Idempotent(t *testing.T) {
	imp := ledger.ImportState{Mode: ledger.ModeImportAll}
	first := Apply(imp, ledger.FirstSeen{}, dir("a", "b"), 100)
	second := Apply(first.Import, first.FirstSeen, dir("a", "b"), 200)

	assert.Equal(t, first.FirstSeen, second.FirstSeen)
	assert.Equal(t, first.Visible, second.Visible)
}

func TestNewIDs(t *testing.T) {
	fs := ledger.FirstSeen{"a": 1}
	assert.Equal(t, []string{"b", "c"}, NewIDs(fs, dir("a", "b", "c")))
	assert.Nil(t, NewIDs(fs, dir("a")))
}
