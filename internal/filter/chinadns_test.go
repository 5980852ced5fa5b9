package filter_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/filter"
	"github.com/jjeffcaii/zerodns-sub000/internal/geoip"
	"github.com/jjeffcaii/zerodns-sub000/internal/upstream"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func loadTestGeo(t *testing.T) *geoip.Matcher {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.txt")
	require.NoError(t, os.WriteFile(path, []byte("1.2.3.0/24,CN\n"), 0o644))
	m, err := geoip.Load(path)
	require.NoError(t, err)
	return m
}

func answerIP(t *testing.T, resp wire.Message) string {
	t.Helper()
	it, err := resp.Answers()
	require.NoError(t, err)
	require.True(t, it.Next())
	rdata, err := it.RR().DecodeRData()
	require.NoError(t, err)
	a := rdata.(wire.RDataA)
	return a.IP.String()
}

// The trusted leg is made to fail in this test so the mistrusted leg's
// CN-validated answer is the only one that can ever reach the rendezvous
// slot: both legs run concurrently, and a trusted leg that also succeeded
// would make the outcome a genuine goroutine-scheduling race.
func TestChinaDNS_MistrustedAnswerIsCN_Wins(t *testing.T) {
	geo := loadTestGeo(t)
	mistrusted := &fakeUpstream{name: "mistrusted", ip: "1.2.3.4"}
	trusted := &fakeUpstream{name: "trusted", err: errors.New("unreachable")}

	cd := filter.NewChinaDNS(
		[]upstream.Client{trusted},
		[]upstream.Client{mistrusted},
		geo,
	)

	req, err := wire.BuildQuery(1, "example.cn.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	resp, err := runChain(t, cd, req)
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4", answerIP(t, resp))
}

// The mistrusted leg's answer fails the CN predicate here, so it never
// reaches the slot; only the trusted leg can win.
func TestChinaDNS_MistrustedAnswerNotCN_FallsBackToTrusted(t *testing.T) {
	geo := loadTestGeo(t)
	mistrusted := &fakeUpstream{name: "mistrusted", ip: "9.9.9.9"}
	trusted := &fakeUpstream{name: "trusted", ip: "8.8.8.8"}

	cd := filter.NewChinaDNS(
		[]upstream.Client{trusted},
		[]upstream.Client{mistrusted},
		geo,
	)

	req, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	resp, err := runChain(t, cd, req)
	require.NoError(t, err)
	require.Equal(t, "8.8.8.8", answerIP(t, resp))
}

// When neither leg's predicate is ever satisfied (mistrusted fails and
// trusted fails too), race must still return - an error, not a hang -
// instead of blocking forever on the rendezvous channel.
func TestChinaDNS_BothLegsMiss_ReturnsErrorInsteadOfHanging(t *testing.T) {
	geo := loadTestGeo(t)
	mistrusted := &fakeUpstream{name: "mistrusted", err: errors.New("unreachable")}
	trusted := &fakeUpstream{name: "trusted", err: errors.New("unreachable")}

	cd := filter.NewChinaDNS(
		[]upstream.Client{trusted},
		[]upstream.Client{mistrusted},
		geo,
	)

	req, err := wire.BuildQuery(1, "example.com.", wire.TypeA, wire.ClassIN)
	require.NoError(t, err)

	done := make(chan struct{})
	var resp wire.Message
	var runErr error
	go func() {
		resp, runErr = runChain(t, cd, req)
		close(done)
	}()

	select {
	case <-done:
		require.Error(t, runErr)
		_ = resp
	case <-time.After(5 * time.Second):
		t.Fatal("chinadns race hung instead of returning an error")
	}
}
