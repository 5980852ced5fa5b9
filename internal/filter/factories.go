package filter

import (
	"context"
	"net"

	"github.com/jjeffcaii/zerodns-sub000/internal/geoip"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// HostsFactory builds a Hosts filter from decoded `props = { hosts = {
// name = ip | [ip...] } }`. It needs nothing beyond the props themselves,
// unlike ProxyByFactory/ChinaDNSFactory which close over an upstream
// Manager to dial real upstreams.
func HostsFactory(props map[string]interface{}) (Filter, error) {
	raw, ok := props["hosts"].(map[string]interface{})
	if !ok {
		return nil, xerrors.InvalidConfig("filters.hosts: missing or malformed \"hosts\" table")
	}

	entries := make(map[string][]net.IP, len(raw))
	for name, v := range raw {
		ips, err := decodeIPs(name, v)
		if err != nil {
			return nil, err
		}
		entries[name] = ips
	}
	return NewHosts(entries), nil
}

func decodeIPs(name string, v interface{}) ([]net.IP, error) {
	switch t := v.(type) {
	case string:
		ip := net.ParseIP(t)
		if ip == nil {
			return nil, xerrors.InvalidConfig("filters.hosts: invalid IP \"", t, "\" for ", name)
		}
		return []net.IP{ip}, nil
	case []interface{}:
		ips := make([]net.IP, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, xerrors.InvalidConfig("filters.hosts: non-string IP entry for ", name)
			}
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, xerrors.InvalidConfig("filters.hosts: invalid IP \"", s, "\" for ", name)
			}
			ips = append(ips, ip)
		}
		return ips, nil
	default:
		return nil, xerrors.InvalidConfig("filters.hosts: unsupported value type for ", name)
	}
}

// ProxyByFactory returns a filter.Factory building ProxyBy filters from
// decoded `props = { servers = [endpoint...] }`, dialing each endpoint
// through mgr so every proxyby filter in the process shares its
// connection pools and bootstrap cache.
func ProxyByFactory(mgr *upstream.Manager) Factory {
	return func(props map[string]interface{}) (Filter, error) {
		servers, err := decodeEndpointList(props, "servers")
		if err != nil {
			return nil, err
		}
		if len(servers) == 0 {
			return nil, xerrors.InvalidConfig("filters.proxyby: \"servers\" must be non-empty")
		}

		clients := make([]upstream.Client, 0, len(servers))
		for _, s := range servers {
			c, err := mgr.Build(context.Background(), s)
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		}
		return NewProxyBy(clients...), nil
	}
}

// ChinaDNSFactory returns a filter.Factory building ChinaDNS filters from
// decoded `props = { trusted = [...], mistrusted = [...], geoip_database =
// "path" }`.
func ChinaDNSFactory(mgr *upstream.Manager) Factory {
	return func(props map[string]interface{}) (Filter, error) {
		trustedEPs, err := decodeEndpointList(props, "trusted")
		if err != nil {
			return nil, err
		}
		mistrustedEPs, err := decodeEndpointList(props, "mistrusted")
		if err != nil {
			return nil, err
		}
		if len(trustedEPs) == 0 || len(mistrustedEPs) == 0 {
			return nil, xerrors.InvalidConfig("filters.chinadns: both \"trusted\" and \"mistrusted\" must be non-empty")
		}

		dbPath, _ := props["geoip_database"].(string)
		if dbPath == "" {
			return nil, xerrors.InvalidConfig("filters.chinadns: missing \"geoip_database\"")
		}
		geo, err := geoip.Load(dbPath)
		if err != nil {
			return nil, err
		}

		trusted, err := buildClients(mgr, trustedEPs)
		if err != nil {
			return nil, err
		}
		mistrusted, err := buildClients(mgr, mistrustedEPs)
		if err != nil {
			return nil, err
		}
		return NewChinaDNS(trusted, mistrusted, geo), nil
	}
}

func buildClients(mgr *upstream.Manager, endpoints []string) ([]upstream.Client, error) {
	clients := make([]upstream.Client, 0, len(endpoints))
	for _, s := range endpoints {
		c, err := mgr.Build(context.Background(), s)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func decodeEndpointList(props map[string]interface{}, key string) ([]string, error) {
	raw, ok := props[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, xerrors.InvalidConfig("filters: \"", key, "\" must be a list of endpoint strings")
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, xerrors.InvalidConfig("filters: \"", key, "\" entries must be strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// RegisterBuiltins registers the hosts/proxyby/chinadns factories into reg.
// "chain" is deliberately not registered here: it is configuration sugar
// expanded by the rule-building step, not a Factory-constructed Filter (see
// internal/bootstrap).
func RegisterBuiltins(reg *Registry, mgr *upstream.Manager) {
	reg.Register("hosts", HostsFactory)
	reg.Register("proxyby", ProxyByFactory(mgr))
	reg.Register("chinadns", ChinaDNSFactory(mgr))
}
