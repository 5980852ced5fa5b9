package upstream

import (
	"context"
	"net"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// TCPClient implements DNS over TCP (RFC 7766) with a bounded, per-
// destination connection pool. Each pooled connection carries exactly one
// request at a time; no pipelining.
type TCPClient struct {
	addr string
	name string
	pool *connPool
}

// NewTCPClient creates a TCP upstream client for the given endpoint,
// registering its pool in registry under the endpoint's address.
func NewTCPClient(registry *poolRegistry, ep wire.Endpoint) *TCPClient {
	addr := ep.Addr()
	c := &TCPClient{addr: addr, name: "TCP//" + addr}
	c.pool = registry.getOrCreate("tcp:"+addr, func(ctx context.Context) (net.Conn, error) {
		return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	})
	return c
}

func (c *TCPClient) Name() string { return c.name }
func (c *TCPClient) Close() error { return nil }

// Request acquires a pooled connection, performs one length-framed
// request/response, and returns the connection to the pool on success or
// discards it (marking it poisoned) on any error.
func (c *TCPClient) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
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
	logging.Ctx(ctx).Debug().Str("upstream", c.name).Dur("elapsed", time.Since(start)).Msg("tcp request completed")
	return resp, nil
}

// doFramedRequest performs one length-prefixed request/response exchange
// over conn, shared by the TCP and DoT clients (which differ only in how
// the net.Conn was established).
func doFramedRequest(ctx context.Context, conn net.Conn, req wire.Message) (wire.Message, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := wire.WriteFrame(conn, req.Bytes()); err != nil {
		return wire.Message{}, classifyIOErr("tcp", err)
	}
	buf, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Message{}, classifyIOErr("tcp", err)
	}
	return wire.FromBytes(buf)
}
