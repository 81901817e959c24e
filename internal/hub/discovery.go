package hub

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// probeTimeout bounds a single candidate probe. Kept short so a full subnet
// scan finishes quickly.
const probeTimeout = 2 * time.Second

// maxProbeWorkers bounds how many candidates are probed at once.
const maxProbeWorkers = 16

// Discovery locates the hub on the local network when no address is
// configured.
type Discovery struct {
	apiKey string

	// candidates overrides subnet enumeration in tests.
	candidates []string
}

// NewDiscovery creates a discovery service signing probes with the given
// API key.
func NewDiscovery(apiKey string) *Discovery {
	return &Discovery{apiKey: apiKey}
}

// Verify confirms that a configured address answers like the expected hub.
func (d *Discovery) Verify(ctx context.Context, baseURL string) (*BridgeInfo, error) {
	client := NewClient(Config{
		BaseURL: baseURL,
		APIKey:  d.apiKey,
		Timeout: probeTimeout,
		// A verification probe either answers or it does not.
		MaxRetries: 0,
	})
	return client.Ping(ctx)
}

// Discover probes local subnet neighbors until one of them answers like a
// hub. The first success wins and the remaining probes are abandoned.
func (d *Discovery) Discover(ctx context.Context) (string, error) {
	candidates := d.candidates
	if candidates == nil {
		var err error
		candidates, err = localCandidates()
		if err != nil {
			return "", fmt.Errorf("enumerating local networks: %w", err)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no local networks to scan")
	}

	probeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan string, 1)
	sem := make(chan struct{}, maxProbeWorkers)
	var wg sync.WaitGroup

	for _, candidate := range candidates {
		select {
		case sem <- struct{}{}:
		case <-probeCtx.Done():
		}
		if probeCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := d.Verify(probeCtx, url); err != nil {
				return
			}
			select {
			case found <- url:
				cancel()
			default:
			}
		}(candidate)
	}

	wg.Wait()

	select {
	case url := <-found:
		log.Printf("Discovered hub at %s", url)
		return url, nil
	default:
		return "", fmt.Errorf("no hub found on local networks")
	}
}

// localCandidates enumerates the /24 neighbors of every non-loopback IPv4
// interface address.
func localCandidates() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var candidates []string

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}

		base := ip.Mask(net.CIDRMask(24, 32))
		prefix := fmt.Sprintf("%d.%d.%d", base[0], base[1], base[2])
		if seen[prefix] {
			continue
		}
		seen[prefix] = true

		for host := 1; host < 255; host++ {
			candidate := fmt.Sprintf("http://%s.%d", prefix, host)
			if host == int(ip[3]) {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	return candidates, nil
}
