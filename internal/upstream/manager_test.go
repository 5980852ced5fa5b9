package upstream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
)

// These tests only exercise endpoints addressed by literal IP, which the
// Bootstrapper short-circuits before ever calling the fallback resolver.

func TestManager_BuildsUDPClientForBareIP(t *testing.T) {
	mgr := upstream.NewManager(upstream.NewSystemResolver())
	c, err := mgr.Build(context.Background(), "1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, "UDP//1.1.1.1:53", c.Name())
}

func TestManager_BuildsTCPClientForLiteralIP(t *testing.T) {
	mgr := upstream.NewManager(upstream.NewSystemResolver())
	c, err := mgr.Build(context.Background(), "tcp://9.9.9.9:53")
	require.NoError(t, err)
	require.Equal(t, "TCP//9.9.9.9:53", c.Name())
}

func TestManager_BuildsDoTClientForLiteralIP_PreservesHostAsSNI(t *testing.T) {
	mgr := upstream.NewManager(upstream.NewSystemResolver())
	c, err := mgr.Build(context.Background(), "dot://1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, "DoT//1.1.1.1/1.1.1.1:853", c.Name())
}

func TestManager_BuildsDoHClientForLiteralIPHost(t *testing.T) {
	mgr := upstream.NewManager(upstream.NewSystemResolver())
	c, err := mgr.Build(context.Background(), "https://1.1.1.1/dns-query")
	require.NoError(t, err)
	require.Equal(t, "DoH//1.1.1.1", c.Name())
}

func TestManager_InvalidEndpoint_Errors(t *testing.T) {
	mgr := upstream.NewManager(upstream.NewSystemResolver())
	_, err := mgr.Build(context.Background(), "not a valid endpoint://")
	require.Error(t, err)
}
