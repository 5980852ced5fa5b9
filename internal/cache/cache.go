// Package cache implements a bounded, TTL-aware response cache for
// resolved DNS messages, keyed by the transaction-ID-independent question
// bytes (see wire.Message.NormalizedKey).
package cache

import (
	"container/list"
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/singleflight"

	"github.com/jjeffcaii/zerodns-sub000/internal/logging"
	"github.com/jjeffcaii/zerodns-sub000/internal/wire"
)

// LoaderFunc resolves a cache miss. It is expected to be whatever upstream
// dispatch (hosts/proxyby/chinadns/chain) the caller has already built.
// cacheable is false when the filter chain asked (via filter.Context's
// NoCache flag) that this particular response never be stored, e.g.
// because it's only valid for the requesting peer.
type LoaderFunc func(key string, req wire.Message) (msg wire.Message, cacheable bool, err error)

// sampleSize bounds how many candidates random eviction considers per
// insertion; this is the "bounded policy whose correctness does not depend
// on exact order" the cache only needs to satisfy, not a true LRU.
const sampleSize = 5

// doorkeeperCapacity sizes the cuckoo filter used to gate first-time
// inserts: an item must be seen twice before it earns a cache slot, which
// keeps one-off queries from evicting genuinely hot entries (the "cache
// admission" pattern popularized by window-TinyLFU).
const doorkeeperCapacity = 1 << 16

type entry struct {
	msg     wire.Message
	created time.Time
	minTTL  time.Duration // smallest original answer TTL, used to know when the entry as a whole expires
	elem    *list.Element // membership in lru for O(1) removal
}

// LoadingCache is a singleflight-deduplicated, TTL-aware, capacity-bounded
// cache of DNS responses. A zero-capacity LoadingCache (size <= 0) is a
// valid, always-miss cache: Get always calls load and nothing is ever
// stored, matching the "cache_size=0 disables caching" contract.
type LoadingCache struct {
	capacity int
	group    singleflight.Group

	mu         sync.Mutex
	items      map[string]*entry
	lru        *list.List // front = most recently touched
	doorkeeper *cuckoo.Filter
}

// New creates a LoadingCache holding at most capacity entries. capacity<=0
// disables storage entirely (every Get is a miss that still deduplicates
// concurrent identical lookups via singleflight).
func New(capacity int) *LoadingCache {
	c := &LoadingCache{
		capacity: capacity,
		items:    make(map[string]*entry),
		lru:      list.New(),
	}
	if capacity > 0 {
		c.doorkeeper = cuckoo.NewFilter(doorkeeperCapacity)
	}
	return c
}

// Get returns a cached response for key if present and unexpired, adjusting
// its TTL for elapsed time. On a miss it calls load exactly once across all
// concurrent callers sharing key (via singleflight) and, capacity
// permitting, stores the result.
func (c *LoadingCache) Get(key string, req wire.Message, load LoaderFunc) (wire.Message, bool, error) {
	if msg, ok := c.lookup(key); ok {
		return msg, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		msg, cacheable, err := load(key, req)
		if err != nil {
			return wire.Message{}, err
		}
		if cacheable {
			c.insert(key, msg)
		}
		return msg, nil
	})
	if err != nil {
		return wire.Message{}, false, err
	}
	// Every singleflight sharer receives the same loader result; clone
	// before handing it back so each caller's subsequent in-place mutation
	// (handler.go rewrites the transaction id) never touches another
	// concurrent caller's copy.
	return v.(wire.Message).Clone(), false, nil
}

func (c *LoadingCache) lookup(key string) (wire.Message, bool) {
	if c.capacity <= 0 {
		return wire.Message{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return wire.Message{}, false
	}

	elapsed := time.Since(e.created)
	if e.minTTL-elapsed <= 0 {
		c.removeLocked(key, e)
		return wire.Message{}, false
	}

	c.lru.MoveToFront(e.elem)
	msg := adjustTTL(e.msg.Clone(), elapsed)
	return msg, true
}

func (c *LoadingCache) insert(key string, msg wire.Message) {
	if c.capacity <= 0 {
		return
	}

	ttl := minAnswerTTL(msg)
	if ttl <= 0 {
		return // nothing worth caching (e.g. NXDOMAIN with no SOA minimum we track)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		// InsertUnique succeeds only the first time a key is seen; require
		// a second sighting before it earns cache space, so a one-off
		// query can't evict a genuinely hot entry.
		if c.doorkeeper.InsertUnique([]byte(key)) {
			return
		}
	}

	if _, exists := c.items[key]; !exists && len(c.items) >= c.capacity {
		c.evictLocked()
	}

	elem := c.lru.PushFront(key)
	c.items[key] = &entry{msg: msg.Clone(), created: time.Now(), minTTL: ttl, elem: elem}
}

// evictLocked samples up to sampleSize keys from the back of the LRU list
// and evicts the oldest of the sample. Exact global LRU order is not
// required, only a bounded eviction policy.
func (c *LoadingCache) evictLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}

	oldest := back
	cursor := back
	for i := 1; i < sampleSize && cursor != nil; i++ {
		cursor = cursor.Prev()
		if cursor == nil {
			break
		}
		cand, ok := c.items[cursor.Value.(string)]
		cur, curOK := c.items[oldest.Value.(string)]
		if ok && (!curOK || cand.created.Before(cur.created)) {
			oldest = cursor
		}
	}

	key := oldest.Value.(string)
	if e, ok := c.items[key]; ok {
		c.removeLocked(key, e)
		logging.L().Debug().Int("capacity", c.capacity).Msg("cache: evicted entry to make room")
	}
}

func (c *LoadingCache) removeLocked(key string, e *entry) {
	c.lru.Remove(e.elem)
	delete(c.items, key)
}

// Len reports the number of entries currently stored, for diagnostics and
// tests.
func (c *LoadingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// minAnswerTTL returns the smallest TTL across the answer section, or 0 if
// there are no answers (nothing cacheable).
func minAnswerTTL(msg wire.Message) time.Duration {
	it, err := msg.Answers()
	if err != nil {
		return 0
	}

	var min uint32
	found := false
	for it.Next() {
		ttl := it.RR().TTL
		if !found || ttl < min {
			min = ttl
			found = true
		}
	}
	if !found {
		return 0
	}
	return time.Duration(min) * time.Second
}

// adjustTTL rewrites each answer record's TTL in place to reflect how much
// of its own original TTL remains after elapsed, floored at 1 second so a
// response is never served claiming a TTL of zero. Each record is adjusted
// independently from its own stored TTL, not a single cache-wide value, so
// a message mixing e.g. 300s and 60s answers keeps them distinct.
func adjustTTL(msg wire.Message, elapsed time.Duration) wire.Message {
	elapsedSecs := uint32(elapsed / time.Second)

	it, err := msg.Answers()
	if err != nil {
		return msg
	}
	for it.Next() {
		rr := it.RR()
		var newTTL uint32
		if rr.TTL > elapsedSecs {
			newTTL = rr.TTL - elapsedSecs
		} else {
			newTTL = 1
		}
		rr.SetTTL(newTTL)
	}
	return msg
}
