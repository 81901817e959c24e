package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbridge/backend/internal/device"
	"github.com/lockbridge/backend/internal/hub"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunMigrations(db))
	return db
}

// Migrations are tracked and applying them twice is a no-op.
func TestMigrationsIdempotent(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, RunMigrations(db))
}

func TestUpsertAndGet(t *testing.T) {
	repo := NewDeviceStateRepository(setupDB(t))
	ctx := context.Background()

	err := repo.Upsert(ctx, DeviceState{
		DeviceID:     7,
		Name:         "Front Door",
		SerialNumber: "ABC-123",
		State:        hub.StateClosed,
		BatteryLevel: 82,
		IsConnected:  true,
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Front Door", got.Name)
	assert.Equal(t, hub.StateClosed, got.State)
	assert.Equal(t, 82, got.BatteryLevel)
	assert.True(t, got.IsConnected)
	assert.WithinDuration(t, time.Now().UTC(), got.UpdatedAt, time.Minute)
}

// A second upsert for the same device replaces the row instead of adding one.
func TestUpsertReplaces(t *testing.T) {
	repo := NewDeviceStateRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, DeviceState{DeviceID: 7, Name: "Front Door", State: hub.StateClosed}))
	require.NoError(t, repo.Upsert(ctx, DeviceState{DeviceID: 7, Name: "Front Door", State: hub.StateOpen, Jammed: true}))

	states, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, hub.StateOpen, states[0].State)
	assert.True(t, states[0].Jammed)
}

func TestGetByIDMissing(t *testing.T) {
	repo := NewDeviceStateRepository(setupDB(t))

	got, err := repo.GetByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListOrdering(t *testing.T) {
	repo := NewDeviceStateRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, DeviceState{DeviceID: 3, Name: "Back Door"}))
	require.NoError(t, repo.Upsert(ctx, DeviceState{DeviceID: 1, Name: "Front Door"}))

	states, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[0].DeviceID)
	assert.Equal(t, 3, states[1].DeviceID)
}

// Record adapts an engine snapshot into an upserted row.
func TestRecord(t *testing.T) {
	repo := NewDeviceStateRepository(setupDB(t))

	repo.Record(device.Record{
		DeviceID:     5,
		Name:         "Side Door",
		SerialNumber: "XYZ-999",
		State:        hub.StateUnlatched,
		BatteryLevel: hub.BatteryUnknown,
		IsConnected:  true,
	})

	got, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hub.StateUnlatched, got.State)
	assert.Equal(t, hub.BatteryUnknown, got.BatteryLevel)
}
