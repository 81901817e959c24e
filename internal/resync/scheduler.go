// Package resync periodically reconciles the registry against the hub, as a
// safety net for lost webhook deliveries.
package resync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lockbridge/backend/internal/device"
	"github.com/lockbridge/backend/internal/hub"
)

// Broadcaster receives hub connectivity flips detected by the scheduler.
// May be nil.
type Broadcaster interface {
	BackendConnectionChanged(connected bool)
}

// Scheduler drives the periodic full resync and the hub reachability probe.
type Scheduler struct {
	cron        *cron.Cron
	client      *hub.Client
	registry    *device.Registry
	broadcaster Broadcaster
	interval    time.Duration

	// hubUp tracks the last observed reachability so only flips are
	// broadcast. Touched from the cron goroutine only.
	hubUp bool
}

// NewScheduler creates the scheduler. interval is the time between full
// resyncs.
func NewScheduler(client *hub.Client, registry *device.Registry, broadcaster Broadcaster, interval time.Duration) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		client:      client,
		registry:    registry,
		broadcaster: broadcaster,
		interval:    interval,
		hubUp:       true,
	}
}

// Start registers the cron jobs and begins running them.
func (s *Scheduler) Start() error {
	log.Println("Starting resync scheduler...")

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.resyncAll); err != nil {
		return fmt.Errorf("scheduling resync job: %w", err)
	}
	if _, err := s.cron.AddFunc("@every 1m", s.probeHub); err != nil {
		return fmt.Errorf("scheduling hub probe: %w", err)
	}

	s.cron.Start()
	log.Println("Resync scheduler started")
	return nil
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	log.Println("Stopping resync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Resync scheduler stopped")
}

// resyncAll reapplies a fresh snapshot to every engine.
func (s *Scheduler) resyncAll() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if err := s.registry.ResyncAll(ctx); err != nil {
		log.Printf("Periodic resync failed: %v", err)
	}
}

// probeHub pings the hub and broadcasts reachability flips.
func (s *Scheduler) probeHub() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.client.Ping(ctx)
	up := err == nil

	if up != s.hubUp {
		log.Printf("Hub reachability changed: connected=%v", up)
		if s.broadcaster != nil {
			s.broadcaster.BackendConnectionChanged(up)
		}
	}
	s.hubUp = up
}
