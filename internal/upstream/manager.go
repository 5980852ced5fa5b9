package upstream

import (
	"context"
	"net"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// Manager builds Client instances from endpoint strings, sharing one
// connection-pool registry and one bootstrap-lookup cache across every
// client it constructs. This is the non-global injection point Design
// Notes section 9 calls for: a single Manager is built once at bootstrap
// and handed to every filter (proxyby, chinadns) that needs to dial an
// upstream, instead of each filter standing up its own pools.
type Manager struct {
	pools     *poolRegistry
	bootstrap *Bootstrapper
}

// NewManager creates a Manager whose bootstrap hostname lookups (for DoT/
// DoH/DoQ endpoints configured by name rather than IP) fall back to
// systemResolver.
func NewManager(systemResolver Client) *Manager {
	return &Manager{
		pools:     newPoolRegistry(),
		bootstrap: NewBootstrapper(systemResolver),
	}
}

// Build parses s as an endpoint string (per wire.ParseEndpoint's grammar)
// and returns a ready Client for it.
func (m *Manager) Build(ctx context.Context, s string) (Client, error) {
	ep, err := wire.ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	return m.BuildEndpoint(ctx, ep)
}

// BuildEndpoint returns a ready Client for an already-parsed Endpoint,
// resolving a hostname Host through the shared Bootstrapper first for the
// stream-oriented transports (TCP/DoT/DoQ/DoH) that dial a literal address
// rather than letting the OS resolver run per connection.
func (m *Manager) BuildEndpoint(ctx context.Context, ep wire.Endpoint) (Client, error) {
	switch ep.Scheme {
	case wire.SchemeUDP:
		return NewUDPClient(ep), nil
	case wire.SchemeTCP:
		resolved, err := m.resolveForDial(ctx, ep)
		if err != nil {
			return nil, err
		}
		return NewTCPClient(m.pools, resolved), nil
	case wire.SchemeDoT:
		resolved, err := m.resolveForDial(ctx, ep)
		if err != nil {
			return nil, err
		}
		return NewDoTClient(m.pools, resolved), nil
	case wire.SchemeDoQ:
		resolved, err := m.resolveForDial(ctx, ep)
		if err != nil {
			return nil, err
		}
		return NewDoQClient(resolved), nil
	case wire.SchemeDoH:
		dialAddr, err := m.resolveDoHDialAddr(ctx, ep)
		if err != nil {
			return nil, err
		}
		return NewDoHClient(m.pools, ep, dialAddr), nil
	default:
		return NewUDPClient(ep), nil
	}
}

// resolveForDial substitutes a bare-IP Host for a hostname Host via the
// Bootstrapper, preserving the original hostname as SNI when the endpoint
// didn't already carry an explicit override. Endpoints already addressed
// by IP pass through untouched (and never touch the Bootstrapper, so a
// config entirely of literal IPs never depends on any resolver at all).
func (m *Manager) resolveForDial(ctx context.Context, ep wire.Endpoint) (wire.Endpoint, error) {
	if net.ParseIP(ep.Host) != nil {
		return ep, nil
	}
	ips, err := m.bootstrap.Lookup(ctx, ep.Host)
	if err != nil {
		return wire.Endpoint{}, err
	}
	resolved := ep
	if resolved.SNI == "" {
		resolved.SNI = ep.Host
	}
	resolved.Host = ips[0].String()
	return resolved, nil
}

// resolveDoHDialAddr returns a host:port dial override for a DoH endpoint
// whose URL host is a hostname, or "" when it's already a literal IP (in
// which case NewDoHClient dials the URL's own host directly).
func (m *Manager) resolveDoHDialAddr(ctx context.Context, ep wire.Endpoint) (string, error) {
	host := ep.URL.Hostname()
	if net.ParseIP(host) != nil {
		return "", nil
	}

	ips, err := m.bootstrap.Lookup(ctx, host)
	if err != nil {
		return "", err
	}

	port := ep.URL.Port()
	if port == "" {
		if ep.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(ips[0].String(), port), nil
}
