package wire

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// EndpointScheme tags which transport an Endpoint addresses.
type EndpointScheme int

const (
	SchemeUDP EndpointScheme = iota
	SchemeTCP
	SchemeDoT
	SchemeDoH
	SchemeDoQ
)

func (s EndpointScheme) String() string {
	switch s {
	case SchemeUDP:
		return "udp"
	case SchemeTCP:
		return "tcp"
	case SchemeDoT:
		return "dot"
	case SchemeDoH:
		return "doh"
	case SchemeDoQ:
		return "quic"
	default:
		return "unknown"
	}
}

// Endpoint is a tagged DNS upstream identifier: UDP/TCP/DoT carry a host:port
// (DoT optionally an SNI override, when its host was a bare IP but the
// certificate is issued for a name), DoQ the same, and DoH a URL.
type Endpoint struct {
	Scheme EndpointScheme

	// Host is the hostname or IP to dial (UDP/TCP/DoT/DoQ).
	Host string
	// Port is the port to dial (UDP/TCP/DoT/DoQ). Defaults to 53 for UDP/TCP
	// and 853 for DoT/DoQ.
	Port uint16
	// SNI overrides the TLS server name for DoT/DoQ; empty means use Host.
	SNI string

	// URL is set for DoH endpoints (scheme is always logically "https" or
	// "http" at the transport level; this is carried as a parsed URL with
	// scheme/host/port/path per spec's small URL grammar).
	URL *url.URL
}

// String renders the endpoint back to something close to its input form,
// for logging.
func (e Endpoint) String() string {
	if e.Scheme == SchemeDoH {
		return e.URL.String()
	}
	host := e.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return e.Scheme.String() + "://" + host + ":" + strconv.Itoa(int(e.Port))
}

// ParseEndpoint parses an endpoint string per spec section 3/4.2's grammar:
// scheme://host[:port][/path], a bare IP (defaults UDP/53), or host:port
// (defaults UDP).
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, xerrors.InvalidDnsEndpoint("empty endpoint")
	}

	if idx := strings.Index(s, "://"); idx >= 0 {
		scheme := s[:idx]
		rest := s[idx+3:]
		switch scheme {
		case "udp":
			return parseHostPort(rest, SchemeUDP, 53)
		case "tcp":
			return parseHostPort(rest, SchemeTCP, 53)
		case "dot", "tls":
			return parseHostPort(rest, SchemeDoT, 853)
		case "quic", "doq":
			return parseHostPort(rest, SchemeDoQ, 853)
		case "https", "http", "doh":
			u, err := url.Parse(s)
			if err != nil {
				return Endpoint{}, xerrors.InvalidDnsEndpoint("invalid DoH URL: ", s).Base(err)
			}
			if u.Scheme == "doh" {
				u.Scheme = "https"
			}
			if u.Path == "" {
				u.Path = "/dns-query"
			}
			return Endpoint{Scheme: SchemeDoH, URL: u}, nil
		default:
			return Endpoint{}, xerrors.InvalidDnsEndpoint("unknown endpoint scheme: ", scheme)
		}
	}

	// Bare IP or host[:port]: default to UDP/53.
	return parseHostPort(s, SchemeUDP, 53)
}

func parseHostPort(s string, scheme EndpointScheme, defaultPort uint16) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// no port present
		host = s
		portStr = ""
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return Endpoint{}, xerrors.InvalidDnsEndpoint("missing host in endpoint: ", s)
	}
	port := defaultPort
	if portStr != "" {
		p, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Endpoint{}, xerrors.InvalidDnsEndpoint("invalid port in endpoint: ", s).Base(err)
		}
		port = uint16(p)
	}
	return Endpoint{Scheme: scheme, Host: host, Port: uint16(port)}, nil
}

// Addr renders host:port suitable for net.Dial.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}
