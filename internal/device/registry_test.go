package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbridge/backend/internal/hub"
)

type fakeLister struct {
	fakeCommander

	locks    []hub.Lock
	getCalls int
}

func (f *fakeLister) ListLocks(ctx context.Context) ([]hub.Lock, error) {
	return f.locks, nil
}

func (f *fakeLister) GetLock(ctx context.Context, id int) (*hub.Lock, error) {
	f.getCalls++
	for i := range f.locks {
		if f.locks[i].ID == id {
			return &f.locks[i], nil
		}
	}
	return nil, &hub.APIError{StatusCode: 404, Body: "not found"}
}

// Ignored devices get no engine; everything else is exposed with defaults.
func TestRegistryLoad(t *testing.T) {
	client := &fakeLister{locks: []hub.Lock{
		{ID: 1, Name: "Front Door", State: hub.StateClosed},
		{ID: 2, Name: "Back Door", State: hub.StateOpen},
	}}
	registry := NewRegistry(client, nil)

	err := registry.Load(context.Background(), []Config{{ID: 2, Ignored: true}}, nil)
	require.NoError(t, err)

	_, ok := registry.Engine(1)
	assert.True(t, ok)
	_, ok = registry.Engine(2)
	assert.False(t, ok)

	statuses := registry.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "Front Door", statuses[0].Name)
}

// A device resync re-fetches the lock and feeds it through the engine.
func TestRegistryResyncDevice(t *testing.T) {
	client := &fakeLister{locks: []hub.Lock{{ID: 1, Name: "Front Door", State: hub.StateClosed}}}
	registry := NewRegistry(client, nil)
	require.NoError(t, registry.Load(context.Background(), nil, nil))

	client.locks[0].State = hub.StateOpen
	require.NoError(t, registry.ResyncDevice(context.Background(), 1))

	engine, _ := registry.Engine(1)
	current, _ := engine.LockState()
	assert.Equal(t, CurrentUnsecured, current)
	assert.Equal(t, 1, client.getCalls)
}

func TestRegistryResyncUnknownDevice(t *testing.T) {
	client := &fakeLister{}
	registry := NewRegistry(client, nil)

	err := registry.ResyncDevice(context.Background(), 99)
	assert.Error(t, err)
}

// A full resync applies fresh snapshots to every known engine.
func TestRegistryResyncAll(t *testing.T) {
	client := &fakeLister{locks: []hub.Lock{
		{ID: 1, Name: "Front Door", State: hub.StateClosed},
		{ID: 2, Name: "Back Door", State: hub.StateClosed},
	}}
	registry := NewRegistry(client, nil)
	require.NoError(t, registry.Load(context.Background(), nil, nil))

	client.locks[0].State = hub.StateOpen
	client.locks[1].State = hub.StateOpen
	require.NoError(t, registry.ResyncAll(context.Background()))

	for _, id := range []int{1, 2} {
		engine, _ := registry.Engine(id)
		current, _ := engine.LockState()
		assert.Equal(t, CurrentUnsecured, current, "device %d", id)
	}
}
