package upstream

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// DoHClient implements DNS over HTTPS (RFC 8484 section 6): a plain
// HTTP/1.1 GET with the query base64url(no padding)-encoded in the `dns`
// query parameter, over a connection pool keyed by (host, addr) - TLS-
// wrapped for https, plain for http.
type DoHClient struct {
	url  *url.URL
	name string
	hc   *http.Client
}

// NewDoHClient creates a DoH upstream client for the given endpoint's URL.
// dialAddr overrides the TCP dial target (host:port) while the URL's host
// is still used for the TLS ServerName and the HTTP Host header; pass ""
// to dial the URL's own host (the common case, when it is already a
// literal IP or the bootstrap lookup was skipped).
func NewDoHClient(registry *poolRegistry, ep wire.Endpoint, dialAddr string) *DoHClient {
	u := ep.URL
	host := u.Hostname()
	port := u.Port()
	https := u.Scheme == "https"
	if port == "" {
		if https {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := dialAddr
	if addr == "" {
		addr = net.JoinHostPort(host, port)
	}
	key := "doh:" + u.Scheme + ":" + host + ":" + addr

	pool := registry.getOrCreate(key, func(ctx context.Context) (net.Conn, error) {
		rawConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if !https {
			return rawConn, nil
		}
		tlsConn := tls.Client(rawConn, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, err
		}
		return tlsConn, nil
	})

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			pc, err := pool.acquire(ctx)
			if err != nil {
				return nil, err
			}
			return &pooledHTTPConn{pooledConn: pc, pool: pool}, nil
		},
		DisableCompression: true,
	}

	return &DoHClient{
		url:  u,
		name: "DoH//" + u.Host,
		hc:   &http.Client{Transport: transport},
	}
}

// pooledHTTPConn returns its underlying connection to the pool on Close
// instead of actually closing it, so http.Transport's own connection
// caching and this package's pool cooperate rather than double-pool.
// Since DoH here is always one request per acquired connection (no
// keep-alive reuse across calls through http.Client's own pool — we force
// that by disabling HTTP keep-alives below), Close always returns the
// connection.
type pooledHTTPConn struct {
	*pooledConn
	pool *connPool
}

func (c *pooledHTTPConn) Close() error {
	c.pool.put(c.pooledConn)
	return nil
}

// Request issues the DoH GET and decodes the raw wire response body.
func (c *DoHClient) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	q := base64.RawURLEncoding.EncodeToString(req.Bytes())

	u := *c.url
	values := u.Query()
	values.Set("dns", q)
	u.RawQuery = values.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return wire.Message{}, xerrors.Internal(c.name, ": building request").Base(err)
	}
	httpReq.Header.Set("Accept", "application/dns-message")
	httpReq.Close = true // force a fresh pooled conn per request; see pooledHTTPConn

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return wire.Message{}, classifyIOErr(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wire.Message{}, xerrors.NetworkFailure(c.name, ": unexpected HTTP status ", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.Message{}, xerrors.ResolveNothing(c.name, ": closed before full response").Base(err)
	}

	msg, err := wire.FromBytes(body)
	if err != nil {
		return wire.Message{}, err
	}
	logging.Ctx(ctx).Debug().Str("upstream", c.name).Dur("elapsed", time.Since(start)).Msg("doh request completed")
	return msg, nil
}

func (c *DoHClient) Name() string { return c.name }
func (c *DoHClient) Close() error { return nil }
