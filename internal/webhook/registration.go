package webhook

import (
	"context"
	"fmt"
	"log"

	"github.com/lockbridge/backend/internal/hub"
)

// CallbackClient is the slice of the hub API the registration uses.
// *hub.Client satisfies it.
type CallbackClient interface {
	ListCallbacks(ctx context.Context) ([]hub.Callback, error)
	AddCallback(ctx context.Context, url string) (int, error)
	DeleteCallback(ctx context.Context, id int) error
}

// Registration is this process's webhook subscription with the hub. Register
// runs once at startup and Deregister once at shutdown; the two are never
// run concurrently.
type Registration struct {
	client CallbackClient
	url    string

	// id is the hub-assigned callback id, known only for this process's
	// lifetime.
	id int
}

// NewRegistration creates the registration for the given advertised URL.
func NewRegistration(client CallbackClient, url string) *Registration {
	return &Registration{client: client, url: url}
}

// Register removes stale subscriptions left behind for this URL by earlier
// runs, then registers a fresh one.
func (r *Registration) Register(ctx context.Context) error {
	callbacks, err := r.client.ListCallbacks(ctx)
	if err != nil {
		return fmt.Errorf("listing callbacks: %w", err)
	}

	for _, cb := range callbacks {
		if cb.URL != r.url {
			continue
		}
		if err := r.client.DeleteCallback(ctx, cb.ID); err != nil {
			log.Printf("Failed to delete stale callback %d: %v", cb.ID, err)
			continue
		}
		log.Printf("Deleted stale callback %d for %s", cb.ID, r.url)
	}

	id, err := r.client.AddCallback(ctx, r.url)
	if err != nil {
		return fmt.Errorf("adding callback: %w", err)
	}

	r.id = id
	log.Printf("Registered webhook callback %d for %s", id, r.url)
	return nil
}

// Deregister removes this process's subscription.
func (r *Registration) Deregister(ctx context.Context) error {
	if r.id == 0 {
		return nil
	}
	if err := r.client.DeleteCallback(ctx, r.id); err != nil {
		return fmt.Errorf("deleting callback %d: %w", r.id, err)
	}
	log.Printf("Deregistered webhook callback %d", r.id)
	r.id = 0
	return nil
}
