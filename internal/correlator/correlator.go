package correlator

import (
	"container/heap"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateToken is returned when a token is registered twice.
var ErrDuplicateToken = errors.New("correlator: token already registered")

// Completion receives the outcome of a request.
type Completion func(ok bool)

// NewToken returns a random request token.
func NewToken() string { return uuid.NewString() }

type pending struct {
	token    string
	done     Completion
	deadline time.Time
	index    int // position in the deadline heap, -1 when not queued
}

// Correlator tracks pending requests by token.
type Correlator struct {
	timeout time.Duration
	now     func() time.Time
	pending map[string]*pending
	queue   deadlines
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// New returns a Correlator whose entries fail after timeout. A zero timeout
// disables expiry.
func New(timeout time.Duration, opts ...Option) *Correlator {
	c := &Correlator{
		timeout: timeout,
		now:     time.Now,
		pending: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register stores done under token.
func (c *Correlator) Register(token string, done Completion) error {
	if _, ok := c.pending[token]; ok {
		return ErrDuplicateToken
	}
	p := &pending{token: token, done: done, index: -1}
	c.pending[token] = p
	if c.timeout > 0 {
		p.deadline = c.now().Add(c.timeout)
		heap.Push(&c.queue, p)
	}
	return nil
}

// Resolve removes token and runs its completion with ok. Unknown or already
// resolved tokens are ignored; the return value reports whether a
// completion ran.
func (c *Correlator) Resolve(token string, ok bool) bool {
	p, found := c.pending[token]
	if !found {
		return false
	}
	c.remove(p)
	p.done(ok)
	return true
}

// Expire fails every entry whose deadline has passed and returns their tokens.
func (c *Correlator) Expire() []string {
	now := c.now()
	var expired []string
	for c.queue.Len() > 0 && !c.queue[0].deadline.After(now) {
		p := c.queue[0]
		c.remove(p)
		expired = append(expired, p.token)
		p.done(false)
	}
	return expired
}

// Drain fails every pending entry. It returns the number of completions run.
func (c *Correlator) Drain() int {
	n := 0
	for len(c.pending) > 0 {
		for _, p := range c.pending {
			c.remove(p)
			p.done(false)
			n++
		}
	}
	return n
}

// Len returns the number of pending entries.
func (c *Correlator) Len() int { return len(c.pending) }

// NextDeadline returns the earliest pending deadline.
func (c *Correlator) NextDeadline() (time.Time, bool) {
	if c.queue.Len() == 0 {
		return time.Time{}, false
	}
	return c.queue[0].deadline, true
}

func (c *Correlator) remove(p *pending) {
	delete(c.pending, p.token)
	if p.index >= 0 {
		heap.Remove(&c.queue, p.index)
	}
}

// deadlines is a min-heap of pending entries ordered by deadline.
type deadlines []*pending

func (d deadlines) Len() int           { return len(d) }
func (d deadlines) Less(i, j int) bool { return d[i].deadline.Before(d[j].deadline) }
func (d deadlines) Swap(i, j int) {
	d[i], d[j] = d[j], d[i]
	d[i].index = i
	d[j].index = j
}

func (d *deadlines) Push(x any) {
	p := x.(*pending)
	p.index = len(*d)
	*d = append(*d, p)
}

func (d *deadlines) Pop() any {
	old := *d
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*d = old[:n-1]
	return p
}
