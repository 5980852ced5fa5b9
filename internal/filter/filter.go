// Package filter implements the per-query processing pipeline: a Context
// carries per-request state, and an ordered chain of Filters observes and
// optionally produces a response.
package filter

import (
	"context"
	"net"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// Flag is a bitset of per-request hints a filter can set for filters
// further down the chain.
type Flag uint32

const (
	// NoCache instructs the server not to insert the eventual response
	// into the shared cache (e.g. because a filter's answer is only valid
	// for this one peer).
	NoCache Flag = 1 << iota
)

// Context carries the per-request state threaded through a filter chain:
// the requesting peer's address and a small bitflag set. One Context is
// built per inbound query.
type Context struct {
	Peer  net.Addr
	flags Flag
}

// NewContext creates a Context for a request from peer.
func NewContext(peer net.Addr) *Context {
	return &Context{Peer: peer}
}

// Has reports whether f is set.
func (c *Context) Has(f Flag) bool { return c.flags&f != 0 }

// Set adds f to the flag set.
func (c *Context) Set(f Flag) { c.flags |= f }

// Result is an in-out optional response. A filter that produces an answer
// stores it here; later filters in the same chain observe it and may
// override or augment it, since setting Message does not short-circuit
// the chain.
type Result struct {
	Message wire.Message
	Present bool
}

// Set stores msg as the current result.
func (r *Result) Set(msg wire.Message) {
	r.Message = msg
	r.Present = true
}

// Filter is one stage of the per-query pipeline. Implementations
// consult or set res, may (rarely) mutate req, and should invoke next if
// they want the chain to continue — the standard shape is: if res is
// empty, attempt to produce one, then always call next regardless.
type Filter interface {
	Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error
}

// Next invokes the remainder of the chain. Calling it with an empty chain
// is a no-op.
type Next func(ctx context.Context, fctx *Context, req wire.Message, res *Result) error

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error

func (f FilterFunc) Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result, next Next) error {
	return f(ctx, fctx, req, res, next)
}
