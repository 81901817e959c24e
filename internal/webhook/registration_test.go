package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbridge/backend/internal/hub"
)

type fakeCallbackClient struct {
	callbacks []hub.Callback
	nextID    int

	added   []string
	deleted []int
}

func (f *fakeCallbackClient) ListCallbacks(ctx context.Context) ([]hub.Callback, error) {
	return f.callbacks, nil
}

func (f *fakeCallbackClient) AddCallback(ctx context.Context, url string) (int, error) {
	f.nextID++
	f.added = append(f.added, url)
	return f.nextID, nil
}

func (f *fakeCallbackClient) DeleteCallback(ctx context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

// Registering removes stale subscriptions for the same URL before adding a
// fresh one, and deregistering removes exactly that one.
func TestRegistrationLifecycle(t *testing.T) {
	client := &fakeCallbackClient{
		nextID: 10,
		callbacks: []hub.Callback{
			{ID: 4, URL: "http://10.0.0.9:8099/", Method: "POST"},
			{ID: 5, URL: "http://10.0.0.7:9000/", Method: "POST"},
		},
	}
	reg := NewRegistration(client, "http://10.0.0.9:8099/")

	require.NoError(t, reg.Register(context.Background()))

	assert.Equal(t, []int{4}, client.deleted)
	assert.Equal(t, []string{"http://10.0.0.9:8099/"}, client.added)

	require.NoError(t, reg.Deregister(context.Background()))
	assert.Equal(t, []int{4, 11}, client.deleted)

	// Deregistering twice is a no-op.
	require.NoError(t, reg.Deregister(context.Background()))
	assert.Equal(t, []int{4, 11}, client.deleted)
}
