package transport

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OCAP2/smoothsync/internal/channel"
)

const defaultInboxSize = 256

// LinkOptions shapes the simulated link between two loopback ends. Loss and
// Reorder only affect unreliable messages.
type LinkOptions struct {
	// Loss is the probability an unreliable message is dropped.
	Loss float64
	// Reorder is the probability an unreliable message is held back and
	// delivered after the next one.
	Reorder float64
	Latency time.Duration
	// Jitter adds a uniformly random delay in [0, Jitter).
	Jitter time.Duration
	Seed   uint64
	Buffer int
}

// LinkStats counts what happened to messages sent from one loopback end.
type LinkStats struct {
	Sent      uint64
	Dropped   uint64
	Reordered uint64
	Overflow  uint64
}

// Loopback is one end of an in-process link. Messages sent on one end are
// received on the other.
type Loopback struct {
	opts  LinkOptions
	inbox *channel.Buffered[Message]
	peer  *Loopback

	mu     sync.Mutex
	rng    *rand.Rand
	held   *Message
	closed bool
	stats  LinkStats
}

// NewLoopbackPair creates two connected ends sharing the same link options.
func NewLoopbackPair(opts LinkOptions) (*Loopback, *Loopback) {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultInboxSize
	}
	a := newLoopback(opts, opts.Seed)
	b := newLoopback(opts, opts.Seed+1)
	a.peer, b.peer = b, a
	return a, b
}

func newLoopback(opts LinkOptions, seed uint64) *Loopback {
	return &Loopback{
		opts:  opts,
		inbox: channel.New[Message](opts.Buffer),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Send delivers m to the peer, subject to the link options.
func (l *Loopback) Send(m Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	m.Payload = append([]byte(nil), m.Payload...)
	l.stats.Sent++

	if m.Reliable {
		l.deliver(m)
		return nil
	}
	if l.opts.Loss > 0 && l.rng.Float64() < l.opts.Loss {
		l.stats.Dropped++
		return nil
	}
	if l.held != nil {
		held := *l.held
		l.held = nil
		l.deliver(m)
		l.deliver(held)
		return nil
	}
	if l.opts.Reorder > 0 && l.rng.Float64() < l.opts.Reorder {
		l.held = &m
		l.stats.Reordered++
		return nil
	}
	l.deliver(m)
	return nil
}

func (l *Loopback) deliver(m Message) {
	delay := l.opts.Latency
	if l.opts.Jitter > 0 {
		delay += time.Duration(l.rng.Int64N(int64(l.opts.Jitter)))
	}
	inbox := l.peer.inbox
	if delay <= 0 {
		if !inbox.Offer(m) {
			l.stats.Overflow++
		}
		return
	}
	time.AfterFunc(delay, func() {
		inbox.Offer(m)
	})
}

// Receive yields messages sent by the peer.
func (l *Loopback) Receive() <-chan Message {
	return l.inbox.Receive()
}

// Stats returns counters for messages sent from this end.
func (l *Loopback) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close stops this end. A held-back message is discarded.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.held = nil
	l.inbox.Close()
	return nil
}

var _ Transport = (*Loopback)(nil)
