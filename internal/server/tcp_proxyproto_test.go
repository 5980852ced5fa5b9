package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pires/go-proxyproto"
	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/server"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// TestTCPServer_ProxyProtocol_PrependedHeaderIsConsumedBeforeDNSFrame
// confirms a server built with proxyProtocol=true strips a v1 PROXY header
// off the front of the connection and still serves the DNS frame that
// follows it.
func TestTCPServer_ProxyProtocol_PrependedHeaderIsConsumedBeforeDNSFrame(t *testing.T) {
	h := server.NewHandler(hostsEngine(t), nil)
	srv, err := server.NewTCPServer("127.0.0.1:0", h, true)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	addr := tcpServerAddr(t, srv)
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	srcAddr := &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 5150}
	dstAddr := &net.TCPAddr{IP: net.ParseIP("198.51.100.1"), Port: 53}
	hdr := proxyproto.HeaderProxyFromAddrs(1, srcAddr, dstAddr)
	_, err = hdr.WriteTo(conn)
	require.NoError(t, err)

	req, err := wire.BuildQuery(0x77, "one.one.one.one.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, req.Bytes()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf, err := wire.ReadFrame(conn)
	require.NoError(t, err)

	resp, err := wire.FromBytes(buf)
	require.NoError(t, err)
	require.Equal(t, uint16(0x77), resp.ID())
	require.Equal(t, uint16(1), resp.ANCount())
}
