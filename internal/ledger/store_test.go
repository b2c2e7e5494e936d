package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"whenmet/internal/ledger"
	"whenmet/internal/testutil"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewStore(testutil.NewBlobs())

	s.SaveFirstSeen(ctx, ledger.FirstSeen{"c1": 100, "c2": 200})
	s.SaveTags(ctx, ledger.Tags{"c1": {"college"}})
	s.SavePins(ctx, ledger.Pins{"c1": {Latitude: 10, Longitude: 20, CapturedAt: 100}})
	s.SaveImportState(ctx, ledger.ImportState{Mode: ledger.ModeNewOnly, Cutoff: 150})

	assert.Equal(t, ledger.FirstSeen{"c1": 100, "c2": 200}, s.LoadFirstSeen(ctx))
	assert.Equal(t, ledger.Tags{"c1": {"college"}}, s.LoadTags(ctx))
	assert.Equal(t, ledger.Pins{"c1": {Latitude: 10, Longitude: 20, CapturedAt: 100}}, s.LoadPins(ctx))
	assert.Equal(t, ledger.ImportState{Mode: ledger.ModeNewOnly, Cutoff: 150}, s.LoadImportState(ctx))
}

func TestStore_AbsentRecordsLoadAsZero(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewStore(testutil.NewBlobs())

	assert.Empty(t, s.LoadFirstSeen(ctx))
	assert.Empty(t, s.LoadTags(ctx))
	assert.Empty(t, s.LoadPins(ctx))
	assert.Equal(t, ledger.ImportState{}, s.LoadImportState(ctx))
}

func TestStore_MalformedBlobResetsToDefault(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobs()
	blobs.Put(ledger.KeyFirstSeen, []byte(`{"c1": "not a number"`))
	blobs.Put(ledger.KeyPins, []byte(`[]`))
	s := ledger.NewStore(blobs)

	assert.Empty(t, s.LoadFirstSeen(ctx))
	assert.Empty(t, s.LoadPins(ctx))
}

func TestStore_MalformedCutoffFailsClosed(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobs()
	blobs.Put(ledger.KeyImportMode, []byte("new-only"))
	blobs.Put(ledger.KeyImportCutoff, []byte("ready"))
	s := ledger.NewStore(blobs)

	st := s.LoadImportState(ctx)
	assert.Equal(t, ledger.ModeNewOnly, st.Mode)
	assert.Zero(t, st.Cutoff, "non-numeric cutoff must read as unseeded")
	assert.False(t, st.Seeded())
}

func TestStore_UnknownModeReadsAsUnset(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobs()
	blobs.Put(ledger.KeyImportMode, []byte("everything"))
	s := ledger.NewStore(blobs)

	assert.Equal(t, ledger.ModeUnset, s.LoadImportState(ctx).Mode)
}

func TestStore_ReadErrorTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobs()
	blobs.GetErr = errors.New("disk gone")
	s := ledger.NewStore(blobs)

	assert.Empty(t, s.LoadFirstSeen(ctx))
	assert.Equal(t, ledger.ImportState{}, s.LoadImportState(ctx))
}

func TestStore_WriteErrorDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	blobs := testutil.NewBlobs()
	blobs.SetErr = errors.New("disk full")
	s := ledger.NewStore(blobs)

	s.SaveFirstSeen(ctx, ledger.FirstSeen{"c1": 1})
	s.SaveImportState(ctx, ledger.ImportState{Mode: ledger.ModeImportAll})
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := ledger.NewStore(testutil.NewBlobs())

	s.SaveFirstSeen(ctx, ledger.FirstSeen{"c1": 100})
	s.SaveImportState(ctx, ledger.ImportState{Mode: ledger.ModeNewOnly, Cutoff: 50})
	s.Reset(ctx)

	assert.Empty(t, s.LoadFirstSeen(ctx))
	assert.Equal(t, ledger.ImportState{}, s.LoadImportState(ctx))
}
