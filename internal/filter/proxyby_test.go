package filter_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// fakeUpstream is a minimal upstream.Client stand-in for filter tests: it
// either returns a fixed answer IP or a fixed error, and counts calls.
type fakeUpstream struct {
	name  string
	ip    string
	err   error
	calls int
}

func (f *fakeUpstream) Name() string { return f.name }
func (f *fakeUpstream) Close() error { return nil }
func (f *fakeUpstream) Request(ctx context.Context, req wire.Message) (wire.Message, error) {
	f.calls++
	if f.err != nil {
		return wire.Message{}, f.err
	}
	q, err := req.FirstQuestion()
	if err != nil {
		return wire.Message{}, err
	}
	flags := new(wire.FlagsBuilder).SetQR(true).SetRA(true).Build()
	return wire.NewBuilder(req.ID()).
		SetFlags(flags).
		SetQuestion(q.Name.String(), q.Type, q.Class).
		AddAnswerIP(net.ParseIP(f.ip), 120).
		Build()
}

func runChain(t *testing.T, f filter.Filter, req wire.Message) (wire.Message, error) {
	t.Helper()
	res := new(filter.Result)
	chain := filter.NewChain(f)
	err := chain.Handle(context.Background(), filter.NewContext(nil), req, res)
	return res.Message, err
}

func TestProxyBy_FirstUpstreamSucceeds_SecondNeverCalled(t *testing.T) {
	first := &fakeUpstream{name: "first", ip: "203.0.113.1"}
	second := &fakeUpstream{name: "second", ip: "203.0.113.2"}
	pb := filter.NewProxyBy(first, second)

	req, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	resp, err := runChain(t, pb, req)
	require.NoError(t, err)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 0, second.calls)

	it, err := resp.Answers()
	require.NoError(t, err)
	require.True(t, it.Next())
	rdata, err := it.RR().DecodeRData()
	require.NoError(t, err)
	a := rdata.(wire.RDataA)
	require.Equal(t, "203.0.113.1", a.IP.String())
}

func TestProxyBy_FirstUpstreamFails_FallsBackToSecond(t *testing.T) {
	first := &fakeUpstream{name: "first", err: errors.New("boom")}
	second := &fakeUpstream{name: "second", ip: "203.0.113.2"}
	pb := filter.NewProxyBy(first, second)

	req, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	resp, err := runChain(t, pb, req)
	require.NoError(t, err)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)

	it, err := resp.Answers()
	require.NoError(t, err)
	require.True(t, it.Next())
	rdata, err := it.RR().DecodeRData()
	require.NoError(t, err)
	a := rdata.(wire.RDataA)
	require.Equal(t, "203.0.113.2", a.IP.String())
}

func TestProxyBy_AllUpstreamsFail_ReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	first := &fakeUpstream{name: "first", err: boom}
	second := &fakeUpstream{name: "second", err: boom}
	pb := filter.NewProxyBy(first, second)

	req, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	_, err = runChain(t, pb, req)
	require.ErrorIs(t, err, boom)
}
