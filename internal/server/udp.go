package server

import (
	"context"
	"net"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// maxUDPDatagram is large enough for any EDNS0-less query or response;
// oversized responses should use TCP, which this server does not enforce
// (truncation policy is left to upstream clients/filters).
const maxUDPDatagram = 65535

// UDPServer binds a UDP socket and spawns an independent goroutine per
// received datagram. Per-datagram errors are logged and do not stop the
// receive loop. Cancelling Serve's ctx closes the socket and Serve returns
// nil; if the socket is closed by Close while ctx is still live, or a read
// fails for any other reason, Serve returns that read error.
type UDPServer struct {
	conn    *net.UDPConn
	handler *Handler
}

// NewUDPServer binds addr and returns a ready-to-Serve UDPServer.
func NewUDPServer(addr string, handler *Handler) (*UDPServer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPServer{conn: conn, handler: handler}, nil
}

// Close closes the underlying socket, unblocking Serve.
func (s *UDPServer) Close() error { return s.conn.Close() }

// Addr returns the socket's bound address, useful when the configured port
// was 0 (an ephemeral port chosen by the OS).
func (s *UDPServer) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve runs the receive loop until the socket is closed or ctx is done.
func (s *UDPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, maxUDPDatagram)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go s.handleDatagram(ctx, peer, datagram)
	}
}

func (s *UDPServer) handleDatagram(ctx context.Context, peer *net.UDPAddr, datagram []byte) {
	req, err := wire.FromBytes(datagram)
	if err != nil {
		logging.L().Warn().Err(err).Str("peer", peer.String()).Msg("udp server: malformed datagram, replying FORMERR")
		resp, berr := FormErrResponse(datagram)
		if berr != nil {
			logging.L().Error().Err(berr).Str("peer", peer.String()).Msg("udp server: failed to build FORMERR response")
			return
		}
		if _, werr := s.conn.WriteToUDP(resp.Bytes(), peer); werr != nil {
			logging.L().Warn().Err(werr).Str("peer", peer.String()).Msg("udp server: write failed")
		}
		return
	}

	resp, err := s.handler.Handle(ctx, peer, req)
	if err != nil {
		logging.L().Error().Err(err).Str("peer", peer.String()).Msg("udp server: failed to build any response")
		return
	}

	if _, err := s.conn.WriteToUDP(resp.Bytes(), peer); err != nil {
		logging.L().Warn().Err(err).Str("peer", peer.String()).Msg("udp server: write failed")
	}
}
