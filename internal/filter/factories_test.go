package filter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
)

func TestHostsFactory_BuildsFromScalarAndListIPs(t *testing.T) {
	props := map[string]interface{}{
		"hosts": map[string]interface{}{
			"one.example.com": "1.2.3.4",
			"two.example.com": []interface{}{"5.6.7.8", "9.9.9.9"},
		},
	}

	f, err := filter.HostsFactory(props)
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestHostsFactory_MissingTable_Errors(t *testing.T) {
	_, err := filter.HostsFactory(map[string]interface{}{})
	require.Error(t, err)
}

func TestHostsFactory_InvalidIP_Errors(t *testing.T) {
	props := map[string]interface{}{
		"hosts": map[string]interface{}{
			"bad.example.com": "not-an-ip",
		},
	}
	_, err := filter.HostsFactory(props)
	require.Error(t, err)
}

func TestRegisterBuiltins_RegistersHostsProxyByChinaDNS(t *testing.T) {
	reg := filter.NewRegistry()
	filter.RegisterBuiltins(reg, nil)

	_, err := reg.Build("hosts", map[string]interface{}{
		"hosts": map[string]interface{}{"a.com": "1.1.1.1"},
	})
	require.NoError(t, err)

	// Empty props are rejected by the factories themselves, not reported as
	// an unknown kind.
	var unknown *filter.UnknownKindError
	_, err = reg.Build("proxyby", map[string]interface{}{})
	require.Error(t, err)
	require.False(t, errors.As(err, &unknown), "proxyby must be registered")
	_, err = reg.Build("chinadns", map[string]interface{}{})
	require.Error(t, err)
	require.False(t, errors.As(err, &unknown), "chinadns must be registered")

	_, err = reg.Build("chain", nil)
	require.Error(t, err, "chain is configuration sugar, not a registered factory")
}
