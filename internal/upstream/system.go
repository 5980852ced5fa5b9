package upstream

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// resolvConfPath is the well-known location of the system resolver config
// on POSIX systems. Overridable in tests.
var resolvConfPath = "/etc/resolv.conf"

// fallbackNameservers is used when /etc/resolv.conf cannot be read or names
// no nameserver lines at all, so bootstrap hostname lookups never wedge on a
// misconfigured host.
var fallbackNameservers = []string{"8.8.8.8:53", "8.8.4.4:53"}

// SystemResolver answers queries against the nameservers configured in
// /etc/resolv.conf (or a fallback list), trying each in order. It is used
// internally to bootstrap DoT/DoH/DoQ endpoints that are configured by
// hostname rather than IP, and can also be wired in as an ordinary upstream.
//
// The nameserver list is held behind an atomic.Value so Reload can swap it
// in without taking a lock on the read path, matching the "atomically
// swappable configuration, not a mutex-guarded struct" guidance used
// elsewhere for registries that are read far more often than written.
type SystemResolver struct {
	servers atomic.Value // []*UDPClient

	mu sync.Mutex // serializes Reload callers only
}

// NewSystemResolver builds a resolver from the current /etc/resolv.conf,
// falling back to fallbackNameservers if it can't be parsed.
func NewSystemResolver() *SystemResolver {
	r := &SystemResolver{}
	r.servers.Store(buildUDPClients(readResolvConf(resolvConfPath)))
	return r
}

// Reload re-reads /etc/resolv.conf and atomically replaces the nameserver
// list used by subsequent Request calls.
func (r *SystemResolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers.Store(buildUDPClients(readResolvConf(resolvConfPath)))
}

func (r *SystemResolver) Name() string { return "system" }
func (r *SystemResolver) Close() error { return nil }

// Request tries each configured nameserver in order, returning the first
// successful response.
func (r *SystemResolver) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	clients := r.servers.Load().([]*UDPClient)
	var lastErr error
	for _, c := range clients {
		resp, err := c.Request(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return wire.Message{}, lastErr
}

func buildUDPClients(addrs []string) []*UDPClient {
	if len(addrs) == 0 {
		addrs = fallbackNameservers
	}
	out := make([]*UDPClient, 0, len(addrs))
	for _, addr := range addrs {
		ep, err := wire.ParseEndpoint("udp://" + addr)
		if err != nil {
			continue
		}
		out = append(out, NewUDPClient(ep))
	}
	if len(out) == 0 {
		for _, addr := range fallbackNameservers {
			ep, _ := wire.ParseEndpoint("udp://" + addr)
			out = append(out, NewUDPClient(ep))
		}
	}
	return out
}

// readResolvConf extracts "nameserver" lines from a resolv.conf-formatted
// file, appending the default port 53 to each bare IP.
func readResolvConf(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "nameserver" {
			continue
		}
		ip := fields[1]
		if strings.Contains(ip, ":") && !strings.HasPrefix(ip, "[") {
			ip = "[" + ip + "]" // bracket bare IPv6 literals before appending a port
		}
		out = append(out, ip+":53")
	}
	return out
}
