package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/grandcat/zeroconf"
)

// IIODService is the service type advertised by IIOD, and therefore by
// ADALM-Pluto and other Analog Devices radios.
const IIODService = "_iio._tcp"

// Host is a discovered radio.
type Host struct {
	Instance  string // Advertised name: "iiod on pluto"
	Hostname  string // DNS hostname: "pluto.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Address returns something to dial: the first IPv4 address if present,
// otherwise the hostname without its trailing dot.
func (h Host) Address() string {
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			return ip.String()
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].String()
	}
	return strings.TrimSuffix(h.Hostname, ".")
}

// Discover browses for service until ctx expires and returns deduplicated
// hosts ordered by hostname.
func Discover(ctx context.Context, service string) ([]Host, error) {
	if service == "" {
		service = IIODService
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan []Host, 1)
	go func() {
		results <- collect(ctx, entries)
	}()

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	return <-results, nil
}

// collect drains entries until the channel closes or ctx is done.
func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) []Host {
	byKey := make(map[string]Host)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sortedHosts(byKey)
			}
			if e == nil {
				continue
			}

			addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
			addrs = append(addrs, e.AddrIPv4...)
			addrs = append(addrs, e.AddrIPv6...)

			byKey[fmt.Sprintf("%s|%d", e.HostName, e.Port)] = Host{
				Instance:  cleanInstance(e.Instance),
				Hostname:  e.HostName,
				Addresses: addrs,
				Port:      e.Port,
				TXT:       append([]string{}, e.Text...),
			}
		case <-ctx.Done():
			return sortedHosts(byKey)
		}
	}
}

func sortedHosts(byKey map[string]Host) []Host {
	out := make([]Host, 0, len(byKey))
	for _, h := range byKey {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hostname != out[j].Hostname {
			return out[i].Hostname < out[j].Hostname
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
