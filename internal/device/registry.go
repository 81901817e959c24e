package device

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/lockbridge/backend/internal/hub"
)

// Lister extends Commander with the read operations the registry needs.
// *hub.Client satisfies it.
type Lister interface {
	Commander
	ListLocks(ctx context.Context) ([]hub.Lock, error)
	GetLock(ctx context.Context, id int) (*hub.Lock, error)
}

// ObserverFactory builds the observer for one exposed device. May return
// nil when nothing wants to watch it.
type ObserverFactory func(id int, name string) Observer

// Registry owns the set of reconciliation engines, one per exposed lock,
// keyed by the hub-assigned device id. Engines are created once at startup
// and never removed during a run.
type Registry struct {
	client   Lister
	recorder Recorder

	mu      sync.RWMutex
	engines map[int]*Engine
}

// NewRegistry creates an empty registry bound to a hub client. recorder may
// be nil.
func NewRegistry(client Lister, recorder Recorder) *Registry {
	return &Registry{
		client:   client,
		recorder: recorder,
		engines:  make(map[int]*Engine),
	}
}

// Load fetches the device list from the hub and builds one engine per
// exposed lock. Devices marked ignored in the config are skipped; devices
// without a config entry get defaults derived from their hub name.
func (r *Registry) Load(ctx context.Context, configs []Config, observers ObserverFactory) error {
	locks, err := r.client.ListLocks(ctx)
	if err != nil {
		return fmt.Errorf("listing locks: %w", err)
	}

	byID := make(map[int]Config, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, lock := range locks {
		cfg := byID[lock.ID]
		cfg.ID = lock.ID
		if cfg.Ignored {
			log.Printf("Lock %d (%s): ignored by configuration", lock.ID, lock.Name)
			continue
		}

		var observer Observer
		if observers != nil {
			observer = observers(lock.ID, cfg.withDefaults(lock.Name).Name)
		}

		r.engines[lock.ID] = NewEngine(lock, cfg, r.client, observer, r.recorder)
		log.Printf("Lock %d (%s): exposed (latch=%v)", lock.ID, lock.Name, cfg.ExposeLatch)
	}

	return nil
}

// Engine returns the engine for a device id.
func (r *Registry) Engine(id int) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	return e, ok
}

// Statuses returns a stable-ordered view of every engine.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		engines = append(engines, e)
	}
	r.mu.RUnlock()

	sort.Slice(engines, func(i, j int) bool { return engines[i].ID() < engines[j].ID() })

	statuses := make([]Status, 0, len(engines))
	for _, e := range engines {
		statuses = append(statuses, e.Status())
	}
	return statuses
}

// ResyncDevice re-fetches one lock and feeds it through its engine. Used
// when the hub reports a settings change or on demand.
func (r *Registry) ResyncDevice(ctx context.Context, id int) error {
	engine, ok := r.Engine(id)
	if !ok {
		return fmt.Errorf("unknown device %d", id)
	}

	lock, err := r.client.GetLock(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching lock %d: %w", id, err)
	}

	engine.ApplySnapshot(*lock)
	return nil
}

// ResyncAll re-fetches the whole device list and applies a snapshot to every
// known engine. Unknown devices in the response are left alone.
func (r *Registry) ResyncAll(ctx context.Context) error {
	locks, err := r.client.ListLocks(ctx)
	if err != nil {
		return fmt.Errorf("listing locks: %w", err)
	}

	for _, lock := range locks {
		if engine, ok := r.Engine(lock.ID); ok {
			engine.ApplySnapshot(lock)
		}
	}
	return nil
}
