package discovery

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_sketchroom._tcp"

// Advertiser publishes this relay on the local network.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces a relay listening on port.
func Advertise(port int, info ...string) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if len(info) == 0 {
		info = []string{"sketchroom"}
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Relay is a discovered server.
type Relay struct {
	Name string
	Addr string
	Info []string
}

// URL returns the relay's websocket endpoint.
func (r Relay) URL() string {
	return "ws://" + r.Addr + "/ws"
}

func relayFromEntry(e *mdns.ServiceEntry) (Relay, bool) {
	if e == nil || e.Port == 0 {
		return Relay{}, false
	}
	ip := e.AddrV4
	if ip == nil {
		ip = e.AddrV6
	}
	if ip == nil {
		return Relay{}, false
	}
	return Relay{
		Name: e.Name,
		Addr: net.JoinHostPort(ip.String(), strconv.Itoa(e.Port)),
		Info: e.InfoFields,
	}, true
}

// Browse looks for relays for the given duration. Results are deduplicated
// by address and ordered by name.
func Browse(timeout time.Duration) ([]Relay, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []Relay)

	go func() {
		seen := make(map[string]Relay)
		for e := range entries {
			if r, ok := relayFromEntry(e); ok {
				seen[r.Addr] = r
			}
		}
		done <- collect(seen)
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	relays := <-done
	if err != nil {
		return relays, fmt.Errorf("mdns query: %w", err)
	}
	return relays, nil
}

func collect(seen map[string]Relay) []Relay {
	out := make([]Relay, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Addr < out[j].Addr
	})
	return out
}
