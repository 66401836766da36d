package mdns

import (
	"context"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, ips ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, IIODService, "local.")
	e.HostName = host
	e.Port = port
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, parsed)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, parsed)
		}
	}
	return e
}

func TestCollectDeduplicatesAndSorts(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry, 4)
	entries <- entry(`iiod\ on\ pluto`, "pluto.local.", 30431, "192.168.2.1")
	entries <- nil
	entries <- entry(`iiod\ on\ ant`, "ant.local.", 30431, "fe80::1")
	entries <- entry(`iiod\ on\ pluto`, "pluto.local.", 30431, "192.168.2.1", "fe80::2")
	close(entries)

	hosts := collect(context.Background(), entries)
	if len(hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %+v", hosts)
	}
	if hosts[0].Hostname != "ant.local." || hosts[1].Hostname != "pluto.local." {
		t.Fatalf("hosts not sorted: %+v", hosts)
	}
	if hosts[1].Instance != "iiod on pluto" || len(hosts[1].Addresses) != 2 {
		t.Fatalf("latest entry should win: %+v", hosts[1])
	}
}

func TestCollectStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if hosts := collect(ctx, make(chan *zeroconf.ServiceEntry)); len(hosts) != 0 {
		t.Fatalf("expected no hosts, got %+v", hosts)
	}
}

func TestHostAddress(t *testing.T) {
	cases := []struct {
		host Host
		want string
	}{
		{Host{Hostname: "pluto.local.", Addresses: []net.IP{net.ParseIP("fe80::1"), net.ParseIP("192.168.2.1")}}, "192.168.2.1"},
		{Host{Hostname: "pluto.local.", Addresses: []net.IP{net.ParseIP("fe80::1")}}, "fe80::1"},
		{Host{Hostname: "pluto.local."}, "pluto.local"},
	}
	for _, tc := range cases {
		if got := tc.host.Address(); got != tc.want {
			t.Fatalf("Address() = %q, want %q", got, tc.want)
		}
	}
}

func TestCleanInstance(t *testing.T) {
	if got := cleanInstance(`iiod\ on\ pluto`); got != "iiod on pluto" {
		t.Fatalf("unexpected %q", got)
	}
}
