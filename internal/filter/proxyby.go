package filter

import (
	"context"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// ProxyBy forwards a query to an ordered list of upstream clients, trying
// each in turn and taking the first success. There is no retry or
// exponential backoff; a client's own connection pool already retries a
// dead connection once by discarding and redialing.
type ProxyBy struct {
	upstreams []upstream.Client
}

// NewProxyBy builds a ProxyBy filter over upstreams, tried in order.
func NewProxyBy(upstreams ...upstream.Client) *ProxyBy {
	return &ProxyBy{upstreams: upstreams}
}

func (p *ProxyBy) Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error {
	if !res.Present {
		var lastErr error
		for _, u := range p.upstreams {
			resp, err := u.Request(ctx, req)
			if err != nil {
				lastErr = err
				logging.Ctx(ctx).Debug().Str("upstream", u.Name()).Err(err).Msg("proxyby: upstream failed, trying next")
				continue
			}
			res.Set(resp)
			lastErr = nil
			break
		}
		if !res.Present && lastErr != nil {
			return lastErr
		}
	}

	return next(ctx, fctx, req, res)
}
