package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/server"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func TestUDPServer_AnswersDatagram(t *testing.T) {
	h := server.NewHandler(hostsEngine(t), nil)
	srv, err := server.NewUDPServer("127.0.0.1:0", h)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("udp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req, err := wire.BuildQuery(0xabcd, "one.one.one.one.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)
	_, err = conn.Write(req.Bytes())
	require.NoError(t, err)

	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, err := wire.FromBytes(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint16(0xabcd), resp.ID())
	require.Equal(t, uint16(1), resp.ANCount())
}

// TestUDPServer_MalformedDatagram_RepliesFormErr exercises end-to-end
// scenario 5 verbatim: a 2-byte datagram too short to even parse a header
// still gets a 12-byte FORMERR reply with the id echoed from its first two
// bytes, rather than being silently dropped.
func TestUDPServer_MalformedDatagram_RepliesFormErr(t *testing.T) {
	h := server.NewHandler(hostsEngine(t), nil)
	srv, err := server.NewUDPServer("127.0.0.1:0", h)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	conn, err := net.DialTimeout("udp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0xff, 0xff})
	require.NoError(t, err)

	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp, err := wire.FromBytes(buf[:n])
	require.NoError(t, err)
	require.Equal(t, 12, resp.Len())
	require.True(t, resp.Flags().QR())
	require.Equal(t, wire.RCodeFormatError, resp.Flags().RCode())
	require.Equal(t, uint16(0xffff), resp.ID())
}
