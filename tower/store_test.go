package tower

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "towers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_UpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a := Record{ID: mustID(t, "1234567890abcdef"), Name: "A", FirmwareVersion: "1.0", RSSI: -70, LastSeen: time.Now()}
	b := Record{ID: mustID(t, "0000000000000001"), Name: "B", FirmwareVersion: "2.0", RSSI: -50, LastSeen: time.Now()}
	require.NoError(t, s.Upsert(ctx, a))
	require.NoError(t, s.Upsert(ctx, b))

	a.Name = "A renamed"
	require.NoError(t, s.SaveTower(a))

	records, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, b.ID, records[0].ID)
	assert.Equal(t, "A renamed", records[1].Name)
	assert.Equal(t, -70, records[1].RSSI)
}

func TestStore_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	id := mustID(t, "1234567890abcdef")

	_, err := s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upsert(ctx, Record{ID: id, Name: "A"}))
	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.Name)
	assert.False(t, rec.LastSeen.IsZero())

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
}

func TestStore_WarmsRegistryAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "towers.db")

	s, err := OpenStore(ctx, path)
	require.NoError(t, err)
	r := NewRegistry(s)
	id := mustID(t, "1234567890abcdef")
	r.RecordDiscovered(Record{ID: id, Name: "Persisted"})
	require.NoError(t, s.Close())

	s2, err := OpenStore(ctx, path)
	require.NoError(t, err)
	defer s2.Close()
	records, err := s2.Load(ctx)
	require.NoError(t, err)

	r2 := NewRegistry(s2)
	r2.Warm(records)
	rec, ok := r2.LookupPersistent(id)
	require.True(t, ok)
	assert.Equal(t, "Persisted", rec.Name)
}
