package filter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func TestRegistry_BuildAndUnknownKind(t *testing.T) {
	r := filter.NewRegistry()
	r.Register("noop", func(props map[string]interface{}) (filter.Filter, error) {
		return filter.FilterFunc(func(ctx context.Context, fctx *filter.Context, req wire.Message, res *filter.Result, next filter.Next) error {
			return next(ctx, fctx, req, res)
		}), nil
	})

	f, err := r.Build("noop", nil)
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = r.Build("missing", nil)
	require.Error(t, err)
	var unknown *filter.UnknownKindError
	require.ErrorAs(t, err, &unknown)
}
