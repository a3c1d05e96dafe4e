package clamd

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPoolExhausted is returned by Acquire when every connection is in use and
// the wait queue is already at capacity.
var ErrPoolExhausted = errors.New("too many concurrent scan requests")

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("connection pool is closed")

// Factory creates a new daemon connection when the pool is below capacity.
type Factory func(ctx context.Context) (*Conn, error)

// PoolStats is a point-in-time snapshot of pool occupancy for health reporting.
type PoolStats struct {
	// Size is the number of connections currently in the pool, idle or in use.
	Size int
	// InUse is the number of connections currently lent out.
	InUse int
	// Queued is the number of callers waiting for a connection.
	Queued int
}

// handoff is what a queued waiter receives: a connection transferred from a
// release, or a capacity reservation freed by an eviction or a failed
// creation. The zero handoff means the pool closed.
type handoff struct {
	conn     *Conn
	reserved bool
}

// Pool owns a bounded set of daemon connections and serializes their
// acquisition. Callers beyond capacity wait in a FIFO queue of bounded length;
// once both are saturated, Acquire fails fast instead of queueing further.
//
// The mutex guards only bookkeeping. It is never held across a dial or a scan.
type Pool struct {
	factory  Factory
	maxConns int
	maxQueue int
	log      zerolog.Logger

	mu            sync.Mutex
	idle          []*Conn
	inUse         map[*Conn]struct{}
	pending       int // creations in flight, reserved against capacity
	waiters       []chan handoff
	everConnected bool
	closed        bool
}

// NewPool creates a pool. maxConns and maxQueue must be positive.
func NewPool(factory Factory, maxConns, maxQueue int, log zerolog.Logger) *Pool {
	return &Pool{
		factory:  factory,
		maxConns: maxConns,
		maxQueue: maxQueue,
		log:      log,
		inUse:    make(map[*Conn]struct{}),
	}
}

// Acquire returns a connection for exclusive use by the caller.
//
// Idle connections are handed out immediately. Below capacity a new connection
// is created; a creation failure propagates as-is and passes the freed
// capacity to the head waiter. At capacity the caller joins the FIFO wait
// queue, or fails with ErrPoolExhausted when the queue is already full.
// Waiters are served strictly in arrival order: a release hands its connection
// to the head waiter, and freed capacity is reserved on the head waiter's
// behalf before anyone else can claim it.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.inUse[c] = struct{}{}
			p.mu.Unlock()
			return c, nil
		}

		if p.sizeLocked()+p.pending < p.maxConns {
			p.pending++
			p.mu.Unlock()
			return p.create(ctx)
		}

		if len(p.waiters) >= p.maxQueue {
			p.mu.Unlock()
			return nil, ErrPoolExhausted
		}

		ch := make(chan handoff, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case h := <-ch:
			if h.conn != nil {
				return h.conn, nil
			}
			if h.reserved {
				// Capacity was reserved on our behalf; create our own
				// connection with it.
				return p.create(ctx)
			}
			// Pool closed; loop to report it.
			continue
		case <-ctx.Done():
			if p.abandonWaiter(ch) {
				return nil, ctx.Err()
			}
			// Lost the race against a handoff: the channel already holds our
			// connection or reservation; give it back before bailing out.
			h := <-ch
			if h.conn != nil {
				p.Release(h.conn)
			} else if h.reserved {
				p.unreserve()
			}
			return nil, ctx.Err()
		}
	}
}

// create runs the factory holding a capacity reservation.
func (p *Pool) create(ctx context.Context) (*Conn, error) {
	c, err := p.factory(ctx)

	p.mu.Lock()
	p.pending--
	if err != nil {
		// The freed reservation moves to the head waiter so it can attempt
		// its own creation instead of waiting out its context.
		ch := p.reserveForWaiterLocked()
		p.mu.Unlock()
		if ch != nil {
			ch <- handoff{reserved: true}
		}
		return nil, err
	}
	p.everConnected = true
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return nil, ErrPoolClosed
	}
	p.inUse[c] = struct{}{}
	p.mu.Unlock()
	return c, nil
}

// reserveForWaiterLocked pops the head waiter and reserves freed capacity on
// its behalf. Callers must hold mu and, after unlocking, send
// handoff{reserved: true} on the returned channel when it is non-nil.
func (p *Pool) reserveForWaiterLocked() chan handoff {
	if p.closed || len(p.waiters) == 0 || p.sizeLocked()+p.pending >= p.maxConns {
		return nil
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.pending++
	return ch
}

// unreserve gives up a capacity reservation, passing it on to the next waiter.
func (p *Pool) unreserve() {
	p.mu.Lock()
	p.pending--
	ch := p.reserveForWaiterLocked()
	p.mu.Unlock()
	if ch != nil {
		ch <- handoff{reserved: true}
	}
}

// abandonWaiter removes ch from the queue, reporting whether it was still there.
func (p *Pool) abandonWaiter(ch chan handoff) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Release returns a connection after a scan.
//
// When callers are queued, the connection is handed straight to the head of
// the queue and never becomes observably idle; otherwise it is marked idle.
// Releasing a connection the pool no longer owns is a no-op.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	if _, ok := p.inUse[c]; !ok {
		p.mu.Unlock()
		return
	}

	if p.closed {
		delete(p.inUse, c)
		p.mu.Unlock()
		c.Close()
		return
	}

	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		// Stays in-use; ownership moves to the waiter.
		ch <- handoff{conn: c}
		return
	}

	delete(p.inUse, c)
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Remove evicts a connection found to be unusable. The connection leaves the
// pool for good; the freed capacity is reserved for the head waiter, if any,
// so it can create a replacement instead of waiting for a release that may
// never come. The caller is responsible for closing it.
func (p *Pool) Remove(c *Conn) {
	p.mu.Lock()
	delete(p.inUse, c)
	for i, ic := range p.idle {
		if ic == c {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	ch := p.reserveForWaiterLocked()
	p.mu.Unlock()

	p.log.Debug().Int64("conn_id", c.ID()).Msg("evicted clamd connection")
	if ch != nil {
		ch <- handoff{reserved: true}
	}
}

// IsReady reports whether the pool has ever established a connection or
// currently holds one.
func (p *Pool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.everConnected || p.sizeLocked() > 0
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:   p.sizeLocked(),
		InUse:  len(p.inUse),
		Queued: len(p.waiters),
	}
}

// WarmUp eagerly establishes the first connection so the first scan does not
// pay the dial cost. Failure is returned for logging but leaves the pool fully
// usable; creation will be retried lazily on first Acquire.
func (p *Pool) WarmUp(ctx context.Context) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	p.Release(c)
	return nil
}

// Close marks the pool closed, closes idle connections and wakes all waiters.
// In-use connections are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	for _, ch := range waiters {
		ch <- handoff{}
	}
}

// sizeLocked counts connections in the collection. Callers must hold mu.
func (p *Pool) sizeLocked() int {
	return len(p.idle) + len(p.inUse)
}
