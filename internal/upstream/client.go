package upstream

import (
	"context"
	"time"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// DefaultTimeout is the per-request deadline applied when the caller's
// context carries none, per spec section 5 ("default 3-5s").
const DefaultTimeout = 4 * time.Second

// Client is the common contract every upstream transport implements:
// request a message, get a response or an error, under a per-request
// timeout. Implementations never retry internally; retrying across
// multiple upstreams is the caller's (proxyby/system) responsibility.
type Client interface {
	// Request sends req and returns the decoded response. If ctx carries no
	// deadline, DefaultTimeout is applied.
	Request(ctx context.Context, req wire.Message) (wire.Message, error)
	// Name identifies this client for logging (e.g. "UDP//1.1.1.1:53").
	Name() string
	// Close releases any pooled resources held by this client.
	Close() error
}

// withDefaultTimeout returns ctx unchanged if it already has a deadline,
// otherwise a derived context bounded by DefaultTimeout.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
