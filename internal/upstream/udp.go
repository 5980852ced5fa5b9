package upstream

import (
	"context"
	"net"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// UDPClient implements DNS over plain UDP (RFC 1035): one ephemeral socket
// per request, no retries, no pooling (a UDP "connection" is a kernel-level
// 5-tuple filter, not a resource worth pooling).
type UDPClient struct {
	addr string
	name string
}

// NewUDPClient creates a UDP upstream client for the given endpoint.
func NewUDPClient(ep wire.Endpoint) *UDPClient {
	return &UDPClient{addr: ep.Addr(), name: "UDP//" + ep.Addr()}
}

func (c *UDPClient) Name() string { return c.name }
func (c *UDPClient) Close() error { return nil }

// Request sends req over a fresh UDP socket and waits for one datagram.
func (c *UDPClient) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", c.addr)
	if err != nil {
		return wire.Message{}, xerrors.NetworkFailure(c.name, ": dial failed").Base(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(req.Bytes()); err != nil {
		return wire.Message{}, classifyIOErr(c.name, err)
	}

	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.Message{}, classifyIOErr(c.name, err)
	}

	resp, err := wire.FromBytes(buf[:n])
	if err != nil {
		return wire.Message{}, err
	}
	logging.Ctx(ctx).Debug().Str("upstream", c.name).Dur("elapsed", time.Since(start)).Msg("udp request completed")
	return resp, nil
}

func classifyIOErr(name string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return xerrors.Timeout(name, ": request timed out").Base(err)
	}
	return xerrors.NetworkFailure(name, ": io error").Base(err)
}
