package upstream

import (
	"context"
	"crypto/tls"
	"io"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// doqALPN is the ALPN token RFC 9250 reserves for DNS-over-QUIC.
var doqALPN = []string{"doq"}

// DoQClient implements DNS over QUIC (RFC 9250): one bidirectional stream
// per request, length-framed identically to TCP/DoT, over a single cached
// QUIC connection per client. Concurrent requests open their own streams on
// that same connection. The connection is redialed once it is older than
// maxConnLifetime (60s) or after a failed request; it is not drawn from the
// shared pool registry and there is no per-destination connection bound.
type DoQClient struct {
	addr string
	sni  string
	name string

	mu      sync.Mutex
	conn    quic.Connection
	created time.Time
}

// NewDoQClient creates a DoQ upstream client.
func NewDoQClient(ep wire.Endpoint) *DoQClient {
	sni := ep.SNI
	if sni == "" {
		sni = ep.Host
	}
	return &DoQClient{addr: ep.Addr(), sni: sni, name: "DoQ//" + sni + "/" + ep.Addr()}
}

func (c *DoQClient) Name() string { return c.name }

func (c *DoQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.CloseWithError(0, "")
		c.conn = nil
		return err
	}
	return nil
}

func (c *DoQClient) getConn(ctx context.Context) (quic.Connection, error) {
	c.mu.Lock()
	if c.conn != nil && time.Since(c.created) < maxConnLifetime {
		conn := c.conn
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	tlsConf := &tls.Config{ServerName: c.sni, NextProtos: doqALPN, MinVersion: tls.VersionTLS13}
	quicConf := &quic.Config{HandshakeIdleTimeout: DefaultTimeout}
	conn, err := quic.DialAddr(ctx, c.addr, tlsConf, quicConf)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.created = time.Now()
	c.mu.Unlock()
	return conn, nil
}

func (c *DoQClient) invalidate(conn quic.Connection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.CloseWithError(0, "")
}

// Request opens a fresh stream on the cached connection, writes the
// length-framed query, half-closes the send side, and reads the
// length-framed response.
func (c *DoQClient) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	start := time.Now()
	conn, err := c.getConn(ctx)
	if err != nil {
		return wire.Message{}, xerrors.NetworkFailure(c.name, ": dial failed").Base(err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		c.invalidate(conn)
		return wire.Message{}, xerrors.NetworkFailure(c.name, ": open stream failed").Base(err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if err := wire.WriteFrame(stream, req.Bytes()); err != nil {
		c.invalidate(conn)
		return wire.Message{}, classifyIOErr(c.name, err)
	}
	if err := stream.Close(); err != nil { // half-close send side, per RFC 9250
		c.invalidate(conn)
		return wire.Message{}, classifyIOErr(c.name, err)
	}

	buf, err := wire.ReadFrame(stream)
	if err != nil {
		if err == io.EOF {
			return wire.Message{}, xerrors.ResolveNothing(c.name, ": stream closed before response")
		}
		c.invalidate(conn)
		return wire.Message{}, classifyIOErr(c.name, err)
	}

	resp, err := wire.FromBytes(buf)
	if err != nil {
		return wire.Message{}, err
	}
	logging.Ctx(ctx).Debug().Str("upstream", c.name).Dur("elapsed", time.Since(start)).Msg("doq request completed")
	return resp, nil
}
