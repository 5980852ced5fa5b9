package server

import (
	"context"
	"io"
	"net"

	"github.com/pires/go-proxyproto"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// TCPServer binds a TCP listener and spawns one goroutine per accepted
// connection. Requests on a single connection are served strictly one at a
// time in arrival order, per spec section 5's per-connection ordering
// guarantee; across connections no ordering is implied.
type TCPServer struct {
	ln      net.Listener
	handler *Handler
}

// NewTCPServer binds addr and returns a ready-to-Serve TCPServer. When
// proxyProtocol is true, accepted connections are wrapped in
// github.com/pires/go-proxyproto so a deployment sitting behind a TCP load
// balancer (or a stunnel/haproxy fronting DoT) still sees the originating
// client's address rather than the balancer's.
func NewTCPServer(addr string, handler *Handler, proxyProtocol bool) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if proxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	return &TCPServer{ln: ln, handler: handler}, nil
}

// Close closes the listener, unblocking Serve's accept loop. Connections
// already accepted are not closed: each keeps being served until the peer
// closes it or a read or write on it fails.
func (s *TCPServer) Close() error { return s.ln.Close() }

// Addr returns the listener's bound address, useful when the configured
// port was 0 (an ephemeral port chosen by the OS).
func (s *TCPServer) Addr() net.Addr { return s.ln.Addr() }

// Serve runs the accept loop until the listener is closed or ctx is done.
func (s *TCPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

// serveConn reads length-framed requests serially off conn until it's
// closed or errors, writing one framed response per request before reading
// the next.
func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr()
	for {
		buf, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				logging.L().Debug().Err(err).Str("peer", peer.String()).Msg("tcp server: connection closed")
			}
			return
		}

		req, err := wire.FromBytes(buf)
		if err != nil {
			logging.L().Warn().Err(err).Str("peer", peer.String()).Msg("tcp server: malformed frame, replying FORMERR")
			resp, berr := FormErrResponse(buf)
			if berr != nil {
				logging.L().Error().Err(berr).Str("peer", peer.String()).Msg("tcp server: failed to build FORMERR response")
				return
			}
			if werr := wire.WriteFrame(conn, resp.Bytes()); werr != nil {
				logging.L().Warn().Err(werr).Str("peer", peer.String()).Msg("tcp server: write failed")
				return
			}
			continue
		}

		resp, err := s.handler.Handle(ctx, peer, req)
		if err != nil {
			logging.L().Error().Err(err).Str("peer", peer.String()).Msg("tcp server: failed to build any response")
			return
		}

		if err := wire.WriteFrame(conn, resp.Bytes()); err != nil {
			logging.L().Warn().Err(err).Str("peer", peer.String()).Msg("tcp server: write failed")
			return
		}
	}
}
