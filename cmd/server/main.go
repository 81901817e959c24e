// Package main is the entry point for the lock hub bridge daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lockbridge/backend/internal/api"
	"github.com/lockbridge/backend/internal/config"
	"github.com/lockbridge/backend/internal/device"
	"github.com/lockbridge/backend/internal/hub"
	"github.com/lockbridge/backend/internal/resync"
	"github.com/lockbridge/backend/internal/storage"
	"github.com/lockbridge/backend/internal/webhook"
	"github.com/lockbridge/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/lockbridge/config.yaml", "Path to the configuration file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting lock hub bridge (version: %s)...", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *healthCheck {
		if err := runHealthCheck(cfg.APIAddr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	// Resolve the hub address, scanning the local network when none is
	// configured.
	ctx := context.Background()
	discovery := hub.NewDiscovery(cfg.Hub.APIKey)

	address := cfg.Hub.Address
	hubReachable := true
	if address == "" {
		address, err = discovery.Discover(ctx)
		if err != nil {
			log.Printf("Hub discovery failed: %v", err)
			hubReachable = false
		}
	} else if _, err := discovery.Verify(ctx, address); err != nil {
		log.Printf("Configured hub address %s did not verify: %v", address, err)
		hubReachable = false
	}

	var client *hub.Client
	if hubReachable {
		client = hub.NewClient(hub.Config{
			BaseURL:    address,
			APIKey:     cfg.Hub.APIKey,
			Timeout:    cfg.Timeout(),
			MaxRetries: cfg.Hub.MaxRetries,
		})
	}

	// Open the state cache.
	db, err := storage.NewDB(cfg.DataDir + "/lockbridge.db")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	stateRepo := storage.NewDeviceStateRepository(db)

	wsHub := websocket.NewHub()
	go wsHub.Run()
	broadcaster := websocket.NewEventBroadcaster(wsHub)

	// Without a reachable hub the bridge stays up but inert: no devices,
	// no webhook, just the status API reporting degraded health.
	var registry *device.Registry
	var registration *webhook.Registration
	var scheduler *resync.Scheduler
	var webhookServer *http.Server

	if hubReachable {
		registry = device.NewRegistry(client, stateRepo)
		if err := registry.Load(ctx, cfg.Devices, broadcaster.ObserverFor); err != nil {
			log.Fatalf("Failed to load devices: %v", err)
		}

		advertised := cfg.Webhook.AdvertisedURL
		if advertised == "" {
			advertised, err = advertisedURL(address, cfg.Webhook.Port)
			if err != nil {
				log.Fatalf("Failed to derive webhook URL: %v", err)
			}
		}

		handler := webhook.NewHandler(registry, broadcaster)
		webhookServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Webhook.Port),
			Handler:      handler.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("Webhook receiver listening on :%d", cfg.Webhook.Port)
			if err := webhookServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("Webhook server error: %v", err)
			}
		}()

		registration = webhook.NewRegistration(client, advertised)
		if err := registration.Register(ctx); err != nil {
			log.Printf("Warning: webhook registration failed, relying on polling: %v", err)
		}

		scheduler = resync.NewScheduler(client, registry, broadcaster, cfg.ResyncInterval())
		if err := scheduler.Start(); err != nil {
			log.Printf("Warning: failed to start resync scheduler: %v", err)
		}
	}

	apiServer := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      api.NewRouter(client, registry, db, wsHub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("Status API listening on %s", cfg.APIAddr)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if registration != nil {
		if err := registration.Deregister(shutdownCtx); err != nil {
			log.Printf("Warning: webhook deregistration failed: %v", err)
		}
	}
	if webhookServer != nil {
		if err := webhookServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Webhook server shutdown error: %v", err)
		}
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("API server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// advertisedURL derives the webhook URL the hub should call, using the
// local address of the route toward the hub.
func advertisedURL(hubAddress string, port int) (string, error) {
	u, err := url.Parse(hubAddress)
	if err != nil {
		return "", fmt.Errorf("parsing hub address: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}

	conn, err := net.Dial("udp", host)
	if err != nil {
		return "", fmt.Errorf("resolving local address: %w", err)
	}
	defer conn.Close()

	local, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "", fmt.Errorf("splitting local address: %w", err)
	}

	return fmt.Sprintf("http://%s:%d/", local, port), nil
}

// runHealthCheck probes the running daemon's health endpoint.
func runHealthCheck(addr string) error {
	resp, err := http.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status %d", resp.StatusCode)
	}
	return nil
}
