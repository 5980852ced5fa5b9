package filter

import (
	"context"
	"net/netip"

	"github.com/jjeffcaii/zerodns-sub000/internal/geoip"
	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
	"github.com/jjeffcaii/zerodns-sub000/internal/xerrors"
)

// raceResult carries one race's outcome to the rendezvous channel in
// ChinaDNS.race.
type raceResult struct {
	msg wire.Message
	err error
}

// ChinaDNS is a dual-race filter with trust asymmetry: a "mistrusted"
// (typically fast, local) group of upstreams races a "trusted" (typically
// slow, distant) group. The mistrusted race's answer is accepted only if
// every A record it returns resolves to a China (CN) IP per the GeoIP
// database; the trusted race's answer is always accepted. Whichever race
// satisfies its predicate first wins; tie-break is first-to-arrive at the
// rendezvous channel both races send on.
//
// Rationale: in a hostile-DNS environment, a nearby resolver may return
// forged results for foreign domains to redirect traffic; only trust its
// answers when they plausibly describe domestic infrastructure.
type ChinaDNS struct {
	trusted    []upstream.Client
	mistrusted []upstream.Client
	geo        *geoip.Matcher
}

// NewChinaDNS builds a ChinaDNS filter racing trusted against mistrusted,
// using geo to validate mistrusted answers.
func NewChinaDNS(trusted, mistrusted []upstream.Client, geo *geoip.Matcher) *ChinaDNS {
	return &ChinaDNS{trusted: trusted, mistrusted: mistrusted, geo: geo}
}

func (c *ChinaDNS) Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error {
	if !res.Present {
		winner, err := c.race(ctx, req)
		if err != nil {
			return err
		}
		res.Set(winner)
	}
	return next(ctx, fctx, req, res)
}

// race runs both legs concurrently and returns whichever satisfies its
// predicate first. Each leg always sends exactly one raceResult to slot,
// success or not, so race can tell "still waiting on the other leg" apart
// from "both legs are done and neither won" instead of blocking forever
// when neither predicate is ever satisfied.
func (c *ChinaDNS) race(ctx context.Context, req wire.Message) (wire.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slot := make(chan raceResult, 2)

	go func() {
		msg, ok := firstSuccess(ctx, c.mistrusted, req)
		if ok && c.allAnswersAreCN(msg) {
			slot <- raceResult{msg: msg}
			return
		}
		slot <- raceResult{err: xerrors.ResolveNothing("chinadns: mistrusted race produced no plausibly-domestic answer")}
	}()
	go func() {
		msg, ok := firstSuccess(ctx, c.trusted, req)
		if ok {
			slot <- raceResult{msg: msg}
			return
		}
		slot <- raceResult{err: xerrors.ResolveNothing("chinadns: trusted race produced no answer")}
	}()

	var lastErr error
	for i := 0; i < 2; i++ {
		select {
		case r := <-slot:
			if r.err == nil {
				return r.msg, nil
			}
			lastErr = r.err
		case <-ctx.Done():
			return wire.Message{}, ctx.Err()
		}
	}
	return wire.Message{}, lastErr
}

// firstSuccess tries each upstream in order within a group, returning the
// first successful response. This mirrors ProxyBy's sequential-fallback
// shape, run once per race group.
func firstSuccess(ctx context.Context, clients []upstream.Client, req wire.Message) (wire.Message, bool) {
	for _, cl := range clients {
		resp, err := cl.Request(ctx, req)
		if err != nil {
			logging.Ctx(ctx).Debug().Str("upstream", cl.Name()).Err(err).Msg("chinadns: race leg failed")
			continue
		}
		return resp, true
	}
	return wire.Message{}, false
}

// allAnswersAreCN reports whether every A record in msg's answer section
// resolves to a CN-geolocated IP. A response with no A records at all is
// treated as not plausibly domestic (fails the predicate), since there is
// nothing to validate.
func (c *ChinaDNS) allAnswersAreCN(msg wire.Message) bool {
	it, err := msg.Answers()
	if err != nil {
		return false
	}

	seen := false
	for it.Next() {
		rr := it.RR()
		if rr.Type != wire.TypeA {
			continue
		}
		rdata, err := rr.DecodeRData()
		if err != nil {
			return false
		}
		a, ok := rdata.(wire.RDataA)
		if !ok {
			return false
		}
		addr, ok := netip.AddrFromSlice(a.IP.To4())
		if !ok {
			return false
		}
		seen = true
		if !c.geo.Is(addr, "CN") {
			return false
		}
	}
	if it.Err() != nil {
		return false
	}
	return seen
}
