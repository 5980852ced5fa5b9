// Package upstream implements the DNS upstream client variants (UDP, TCP,
// DoT, DoH, DoQ) and the connection pooling, bootstrap lookup, and
// system-default-resolver plumbing that sits underneath the filter chain's
// proxyby/chinadns forwarding.
package upstream

import (
	"container/list"
	"context"
	"net"
	"sync"
	"time"
)

// maxPoolSize and maxConnLifetime bound every stream-oriented pool in this
// package (TCP, DoT, DoH's underlying TLS pool), per spec section 4.2.
const (
	maxPoolSize     = 32
	maxConnLifetime = 60 * time.Second
)

// pooledConn is a net.Conn tagged with the time it was established, so the
// pool can retire connections once they exceed maxConnLifetime.
type pooledConn struct {
	net.Conn
	createdAt time.Time
	poisoned  bool
}

func (c *pooledConn) expired() bool {
	return time.Since(c.createdAt) > maxConnLifetime
}

// dialFunc establishes a fresh connection to a pool's destination.
type dialFunc func(ctx context.Context) (net.Conn, error)

// connPool is a bounded, per-destination pool of pooledConn. It is safe for
// concurrent use. A zero connPool is not usable; use newConnPool.
type connPool struct {
	dial dialFunc

	mu      sync.Mutex
	idle    *list.List // of *pooledConn
	size    int        // idle + checked-out, bounded by maxPoolSize
	waiters *list.List // of chan struct{}, one per blocked acquire, FIFO
}

func newConnPool(dial dialFunc) *connPool {
	return &connPool{dial: dial, idle: list.New(), waiters: list.New()}
}

// acquire returns an idle connection if one passes its readiness probe, or
// dials a new one. If the pool is already at maxPoolSize and none are idle,
// acquire registers itself as a waiter and blocks until a slot frees (via
// put or release waking it) or ctx is done. This uses an explicit
// channel-per-waiter queue rather than sync.Cond, since Cond has no
// built-in way to wait on a context's cancellation without a second
// goroutine racing the caller's own unlock.
func (p *connPool) acquire(ctx context.Context) (*pooledConn, error) {
	for {
		p.mu.Lock()
		if e := p.idle.Front(); e != nil {
			p.idle.Remove(e)
			c := e.Value.(*pooledConn)
			p.mu.Unlock()
			if c.expired() || !probe(c.Conn) {
				c.Conn.Close()
				p.release()
				continue // try again
			}
			return c, nil
		}
		if p.size < maxPoolSize {
			p.size++
			p.mu.Unlock()
			conn, err := p.dial(ctx)
			if err != nil {
				p.release()
				return nil, err
			}
			return &pooledConn{Conn: conn, createdAt: time.Now()}, nil
		}

		// At capacity with none idle: queue as a waiter and block, but
		// remain cancellable.
		ready := make(chan struct{}, 1)
		elem := p.waiters.PushBack(ready)
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.waiters.Remove(elem)
			p.mu.Unlock()
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

// put returns a healthy connection to the idle list.
func (p *connPool) put(c *pooledConn) {
	if c.poisoned || c.expired() {
		p.discard(c)
		return
	}
	p.mu.Lock()
	p.idle.PushBack(c)
	p.wakeWaiterLocked()
	p.mu.Unlock()
}

// discard closes a poisoned/expired connection and frees its pool slot.
func (p *connPool) discard(c *pooledConn) {
	c.Conn.Close()
	p.release()
}

func (p *connPool) release() {
	p.mu.Lock()
	p.size--
	p.wakeWaiterLocked()
	p.mu.Unlock()
}

// wakeWaiterLocked notifies the longest-waiting acquire, if any. Callers
// must hold p.mu. The channel is buffered so a waiter that has already
// given up (ctx done, about to remove itself) never blocks this send.
func (p *connPool) wakeWaiterLocked() {
	e := p.waiters.Front()
	if e == nil {
		return
	}
	p.waiters.Remove(e)
	ch := e.Value.(chan struct{})
	ch <- struct{}{}
}

// probe is a non-destructive readiness check: it sets a zero read deadline
// and attempts a 1-byte peek via SetReadDeadline+Read-with-immediate-
// timeout semantics. Most net.Conn implementations return a timeout error
// (connection still usable) rather than io.EOF (remote closed) here; EOF or
// a non-timeout error means the connection is dead.
func probe(c net.Conn) bool {
	if err := c.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	defer c.SetReadDeadline(time.Time{})

	var b [1]byte
	_, err := c.Read(b[:])
	if err == nil {
		// Unexpected application data waiting on an otherwise idle
		// connection; treat conservatively as unusable.
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}
