package upstream

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// wellKnownProviders short-circuits bootstrap lookups for the handful of
// public DoT/DoH/DoQ providers likely to appear in a config file by
// hostname, so a cold start doesn't have to round-trip the system resolver
// for names that never change.
var wellKnownProviders = map[string][]string{
	"dns.google":      {"8.8.8.8", "8.8.4.4"},
	"one.one.one.one": {"1.1.1.1", "1.0.0.1"},
	"dns.alidns.com":  {"223.5.5.5", "223.6.6.6"},
	"dns.quad9.net":   {"9.9.9.9"},
	"dot.pub":         {"1.12.12.12", "120.53.53.53"},
}

const bootstrapTTL = 30 * time.Second

type bootstrapEntry struct {
	ips     []net.IP
	expires time.Time
}

// Bootstrapper resolves the hostname portion of a DoT/DoH/DoQ endpoint to an
// IP address before a connection is ever dialed, since those transports are
// so often configured with a name (e.g. "dns.google") rather than a literal
// address. Results are cached for bootstrapTTL to avoid a resolver
// round-trip on every dial.
type Bootstrapper struct {
	resolve func(ctx context.Context, host string) ([]net.IP, error)

	mu    sync.Mutex
	cache map[string]bootstrapEntry
}

// NewBootstrapper builds a Bootstrapper that falls back to resolver for any
// hostname not found in the well-known provider table.
func NewBootstrapper(resolver Client) *Bootstrapper {
	return &Bootstrapper{
		resolve: func(ctx context.Context, host string) ([]net.IP, error) {
			return resolveViaClient(ctx, resolver, host)
		},
		cache: make(map[string]bootstrapEntry),
	}
}

// Lookup returns the IP addresses for host, preferring the well-known
// provider table, then the TTL cache, then a live resolution.
func (b *Bootstrapper) Lookup(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	if addrs, ok := wellKnownProviders[host]; ok {
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, net.ParseIP(a))
		}
		return ips, nil
	}

	b.mu.Lock()
	if entry, ok := b.cache[host]; ok && time.Now().Before(entry.expires) {
		b.mu.Unlock()
		return entry.ips, nil
	}
	b.mu.Unlock()

	ips, err := b.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, xerrors.ResolveNothing("bootstrap: no address records for ", host)
	}

	b.mu.Lock()
	b.cache[host] = bootstrapEntry{ips: ips, expires: time.Now().Add(bootstrapTTL)}
	b.mu.Unlock()
	return ips, nil
}

// resolveViaClient issues an A query for host through the given upstream
// client and extracts the resulting addresses.
func resolveViaClient(ctx context.Context, c Client, host string) ([]net.IP, error) {
	req, err := wire.BuildQuery(1, host, wire.TypeA, wire.ClassIN)
	if err != nil {
		return nil, err
	}
	resp, err := c.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	it, err := resp.Answers()
	if err != nil {
		return nil, err
	}
	for it.Next() {
		rr := it.RR()
		if rr.Type != wire.TypeA {
			continue
		}
		rdata, err := rr.DecodeRData()
		if err != nil {
			continue
		}
		if a, ok := rdata.(wire.RDataA); ok {
			ips = append(ips, a.IP)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ips, nil
}
