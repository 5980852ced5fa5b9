package upstream

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// DoTClient implements DNS over TLS (RFC 7858). Its pool is keyed by
// (SNI-or-ip, addr) and wraps each pooled connection in a TLS handshake
// against the platform's default trust roots. No pipelining: one request
// per pooled connection at a time, same as TCPClient.
type DoTClient struct {
	addr string
	sni  string
	name string
	pool *connPool
}

// NewDoTClient creates a DoT upstream client.
func NewDoTClient(registry *poolRegistry, ep wire.Endpoint) *DoTClient {
	addr := ep.Addr()
	sni := ep.SNI
	if sni == "" {
		sni = ep.Host
	}
	c := &DoTClient{addr: addr, sni: sni, name: "DoT//" + sni + "/" + addr}
	key := "dot:" + sni + ":" + addr
	c.pool = registry.getOrCreate(key, func(ctx context.Context) (net.Conn, error) {
		rawConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		tlsConn := tls.Client(rawConn, &tls.Config{ServerName: sni, MinVersion: tls.VersionTLS12})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			rawConn.Close()
			return nil, err
		}
		return tlsConn, nil
	})
	return c
}

func (c *DoTClient) Name() string { return c.name }
func (c *DoTClient) Close() error { return nil }

// Request behaves exactly like TCPClient.Request once the pooled
// connection is in hand; the TLS handshake already happened at dial time.
func (c *DoTClient) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	pc, err := c.pool.acquire(ctx)
	if err != nil {
		return wire.Message{}, classifyIOErr(c.name, err)
	}

	resp, err := doFramedRequest(ctx, pc.Conn, req)
	if err != nil {
		pc.poisoned = true
		c.pool.discard(pc)
		return wire.Message{}, err
	}
	c.pool.put(pc)
	logging.Ctx(ctx).Debug().Str("upstream", c.name).Dur("elapsed", time.Since(start)).Msg("dot request completed")
	return resp, nil
}
