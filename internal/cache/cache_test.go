package cache_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jjeffcaii/zerodns-sub000/internal/cache"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

func buildResponse(t *testing.T, ttl uint32) wire.Message {
	t.Helper()
	b := wire.NewBuilder(1)
	b.SetQuestion("example.com.", wire.TypeA, wire.ClassIN)
	b.AddAnswerIP(mustParseIP(t, "93.184.216.34"), ttl)
	msg, err := b.Build()
	require.NoError(t, err)
	return msg
}

func buildMultiTTLResponse(t *testing.T, ttls ...uint32) wire.Message {
	t.Helper()
	b := wire.NewBuilder(1)
	b.SetQuestion("example.com.", wire.TypeA, wire.ClassIN)
	for i, ttl := range ttls {
		b.AddAnswerIP(mustParseIP(t, net.IPv4(93, 184, 216, byte(34+i)).String()), ttl)
	}
	msg, err := b.Build()
	require.NoError(t, err)
	return msg
}

func answerTTLs(t *testing.T, msg wire.Message) []uint32 {
	t.Helper()
	it, err := msg.Answers()
	require.NoError(t, err)
	var ttls []uint32
	for it.Next() {
		ttls = append(ttls, it.RR().TTL)
	}
	require.NoError(t, it.Err())
	return ttls
}

func mustParseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}

func TestLoadingCache_ZeroCapacity_AlwaysMisses(t *testing.T) {
	c := cache.New(0)
	calls := 0
	load := func(key string, req wire.Message) (wire.Message, bool, error) {
		calls++
		return buildResponse(t, 300), true, nil
	}

	req := buildResponse(t, 300)
	key := req.NormalizedKey()

	_, hit, err := c.Get(key, req, load)
	require.NoError(t, err)
	require.False(t, hit)

	_, hit, err = c.Get(key, req, load)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, calls)
	require.Equal(t, 0, c.Len())
}

func TestLoadingCache_SecondSighting_GetsCached(t *testing.T) {
	c := cache.New(10)
	calls := 0
	load := func(key string, req wire.Message) (wire.Message, bool, error) {
		calls++
		return buildResponse(t, 300), true, nil
	}

	req := buildResponse(t, 300)
	key := req.NormalizedKey()

	// first sighting: doorkeeper records it but doesn't cache yet
	_, hit, err := c.Get(key, req, load)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 0, c.Len())

	// second sighting: now it earns a cache slot
	_, hit, err = c.Get(key, req, load)
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 1, c.Len())

	// third call is served from cache, no further load
	_, hit, err = c.Get(key, req, load)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, 2, calls)
}

func TestLoadingCache_PerRecordTTL_AdjustedIndependently(t *testing.T) {
	c := cache.New(10)
	load := func(key string, req wire.Message) (wire.Message, bool, error) {
		return buildMultiTTLResponse(t, 300, 60), true, nil
	}

	req := buildMultiTTLResponse(t, 300, 60)
	key := req.NormalizedKey()

	// first two sightings: one miss (doorkeeper), one miss-then-cache
	_, _, err := c.Get(key, req, load)
	require.NoError(t, err)
	_, _, err = c.Get(key, req, load)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	msg, hit, err := c.Get(key, req, load)
	require.NoError(t, err)
	require.True(t, hit)

	ttls := answerTTLs(t, msg)
	require.Len(t, ttls, 2)
	require.Less(t, ttls[0], uint32(300))
	require.Less(t, ttls[1], uint32(60))
	require.NotEqual(t, ttls[0], ttls[1])
}

func TestLoadingCache_BoundedCapacity_Evicts(t *testing.T) {
	c := cache.New(2)
	load := func(key string, req wire.Message) (wire.Message, bool, error) {
		return buildResponse(t, 300), true, nil
	}

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		req := buildResponse(t, 300)
		// two sightings per key to clear the doorkeeper gate
		c.Get(k, req, load)
		c.Get(k, req, load)
	}

	require.LessOrEqual(t, c.Len(), 2)
}
