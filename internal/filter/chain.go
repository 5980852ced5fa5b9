package filter

import (
	"context"

	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// Chain is an immutable, explicit ordered sequence of Filters, processed by
// index rather than as a linked list of owned "next" references (Design
// Notes recommend this shape: it avoids recursive async calls and a stack
// depth proportional to chain length).
type Chain struct {
	filters []Filter
}

// NewChain builds a Chain from filters in the given order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Handle runs the chain from the first filter.
func (c *Chain) Handle(ctx context.Context, fctx *Context, req wire.Message, res *Result) error {
	return c.run(0, ctx, fctx, req, res)
}

func (c *Chain) run(i int, ctx context.Context, fctx *Context, req wire.Message, res *Result) error {
	if i >= len(c.filters) {
		return nil
	}
	next := func(ctx context.Context, fctx *Context, req wire.Message, res *Result) error {
		return c.run(i+1, ctx, fctx, req, res)
	}
	return c.filters[i].Handle(ctx, fctx, req, res, next)
}
