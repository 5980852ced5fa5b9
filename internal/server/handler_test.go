package server_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/cache"
	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/rule"
	"github.com/jjeffcaii/zerodns-sub000/internal/server"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func hostsEngine(t *testing.T) *rule.Engine {
	t.Helper()
	h := filter.NewHosts(map[string][]net.IP{
		"one.one.one.one": {net.ParseIP("1.1.1.1")},
	})
	handle := rule.NewHandle(filter.NewChain(h))
	return rule.NewEngine([]rule.Rule{{Glob: "*", Target: "direct"}}, map[string]*rule.Handle{"direct": handle})
}

// TestHandler_UDPEchoViaHostsFilter exercises end-to-end scenario 1 from the
// spec: a hosts-filter answer for a specific id comes back with QR/RA set,
// one A answer with TTL 300, and the original transaction id.
func TestHandler_UDPEchoViaHostsFilter(t *testing.T) {
	h := server.NewHandler(hostsEngine(t), nil)

	req, err := wire.BuildQuery(0x1234, "one.one.one.one.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), &net.UDPAddr{IP: net.ParseIP("127.0.0.1")}, req)
	require.NoError(t, err)

	require.Equal(t, uint16(0x1234), resp.ID())
	require.True(t, resp.Flags().QR())
	require.True(t, resp.Flags().RA())
	require.Equal(t, uint16(1), resp.ANCount())

	it, err := resp.Answers()
	require.NoError(t, err)
	require.True(t, it.Next())
	rr := it.RR()
	require.Equal(t, wire.TypeA, rr.Type)
	require.Equal(t, uint32(300), rr.TTL)
	rdata, err := rr.DecodeRData()
	require.NoError(t, err)
	a, ok := rdata.(wire.RDataA)
	require.True(t, ok)
	require.Equal(t, "1.1.1.1", a.IP.String())
}

// TestHandler_MalformedInput exercises the response-construction half of
// end-to-end scenario 5: a too-short buffer fails to decode before it ever
// reaches Handler.Handle, so the UDP/TCP servers build the FORMERR reply
// themselves via server.FormErrResponse (see udp_test.go/tcp_test.go for
// the full socket-level scenario).
func TestHandler_MalformedInput_ProducesFormErrHeader(t *testing.T) {
	resp, err := wire.BuildErrorResponse(0xffff, wire.RCodeFormatError, nil)
	require.NoError(t, err)
	require.Equal(t, 12, resp.Len())
	require.True(t, resp.Flags().QR())
	require.Equal(t, wire.RCodeFormatError, resp.Flags().RCode())
	require.Equal(t, uint16(0xffff), resp.ID())
}

// TestHandler_CacheHit_ThirdQuerySkipsFilterChain exercises the cache-hit scenario:
// the doorkeeper needs two sightings of a key before it earns a cache slot
// (see cache.TestLoadingCache_SecondSighting_GetsCached), so only the third
// identical query is actually served from cache without touching the
// filter chain again.
func TestHandler_CacheHit_ThirdQuerySkipsFilterChain(t *testing.T) {
	var calls int
	countingFilter := filter.FilterFunc(func(ctx context.Context, fctx *filter.Context, req wire.Message, res *filter.Result, next filter.Next) error {
		calls++
		flags := new(wire.FlagsBuilder).SetQR(true).SetRA(true).Build()
		msg, err := wire.NewBuilder(req.ID()).
			SetFlags(flags).
			SetQuestion("example.com.", wire.TypeA, wire.ClassIN).
			AddAnswerIP(net.ParseIP("9.9.9.9"), 60).
			Build()
		if err != nil {
			return err
		}
		res.Set(msg)
		return next(ctx, fctx, req, res)
	})

	handle := rule.NewHandle(filter.NewChain(countingFilter))
	engine := rule.NewEngine([]rule.Rule{{Glob: "*", Target: "direct"}}, map[string]*rule.Handle{"direct": handle})
	h := server.NewHandler(engine, cache.New(10))

	req1, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)
	req2, err := wire.BuildQuery(2, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)
	req3, err := wire.BuildQuery(3, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), nil, req1) // first sighting: miss, not cached yet
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), nil, req2) // second sighting: miss, now cached
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), nil, req3) // third: served from cache
	require.NoError(t, err)

	require.Equal(t, 2, calls)
}

// TestHandler_NoCacheFlag_NeverCaches exercises the filter.NoCache flag: a
// filter that sets it must see every query hit the chain again, even after
// enough sightings to clear the doorkeeper.
func TestHandler_NoCacheFlag_NeverCaches(t *testing.T) {
	var calls int
	uncacheableFilter := filter.FilterFunc(func(ctx context.Context, fctx *filter.Context, req wire.Message, res *filter.Result, next filter.Next) error {
		calls++
		fctx.Set(filter.NoCache)
		flags := new(wire.FlagsBuilder).SetQR(true).SetRA(true).Build()
		msg, err := wire.NewBuilder(req.ID()).
			SetFlags(flags).
			SetQuestion("example.com.", wire.TypeA, wire.ClassIN).
			AddAnswerIP(net.ParseIP("9.9.9.9"), 60).
			Build()
		if err != nil {
			return err
		}
		res.Set(msg)
		return next(ctx, fctx, req, res)
	})

	handle := rule.NewHandle(filter.NewChain(uncacheableFilter))
	engine := rule.NewEngine([]rule.Rule{{Glob: "*", Target: "direct"}}, map[string]*rule.Handle{"direct": handle})
	h := server.NewHandler(engine, cache.New(10))

	for i := 0; i < 4; i++ {
		req, err := wire.BuildQuery(uint16(i+1), "example.com.", wire.TypeA, wire.ClassIN)
		require.NoError(t, err)
		_, err = h.Handle(context.Background(), nil, req)
		require.NoError(t, err)
	}

	require.Equal(t, 4, calls)
}
