package filter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

type recordingFilter struct {
	name   string
	order  *[]string
}

func (f *recordingFilter) Handle(ctx context.Context, fctx *filter.Context, req wire.Message, res *filter.Result, next filter.Next) error {
	*f.order = append(*f.order, f.name)
	return next(ctx, fctx, req, res)
}

func TestChain_RunsFiltersInOrder(t *testing.T) {
	var order []string
	chain := filter.NewChain(
		&recordingFilter{name: "a", order: &order},
		&recordingFilter{name: "b", order: &order},
		&recordingFilter{name: "c", order: &order},
	)

	req := buildQuery(t, "example.com.", wire.TypeA)
	res := &filter.Result{}
	err := chain.Handle(context.Background(), filter.NewContext(nil), req, res)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestChain_Empty_IsNoOp(t *testing.T) {
	chain := filter.NewChain()
	req := buildQuery(t, "example.com.", wire.TypeA)
	res := &filter.Result{}
	err := chain.Handle(context.Background(), filter.NewContext(nil), req, res)
	require.NoError(t, err)
	require.False(t, res.Present)
}
