// Package connectivity answers whether the network path towards the forecast
// API is usable and reports transitions of that answer.
package connectivity

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/i474232898/weather-cache-sync/internal/common"
	"github.com/i474232898/weather-cache-sync/internal/weather"
)

// Status is the last observed reachability.
type Status int

const (
	StatusUnknown Status = iota
	StatusReachable
	StatusNotReachable
)

func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusNotReachable:
		return "not_reachable"
	default:
		return "unknown"
	}
}

// Available reports whether the status allows network calls.
// Unknown counts as available.
func (s Status) Available() bool {
	return s != StatusNotReachable
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Probe checks reachability with a TCP dial to a well-known address.
type Probe struct {
	target  string
	timeout time.Duration
	dial    DialFunc

	// notifyMu is held while observers run, so an initial callback and a
	// transition fan-out never interleave.
	notifyMu sync.Mutex

	mu        sync.Mutex
	status    Status
	nextID    int
	observers map[int]func(bool)
}

type Option func(*Probe)

// WithDialer replaces the network dialer.
func WithDialer(d DialFunc) Option {
	return func(p *Probe) { p.dial = d }
}

// NewProbe creates a probe dialing target ("host:port").
func NewProbe(target string, timeout time.Duration, opts ...Option) *Probe {
	p := &Probe{
		target:    target,
		timeout:   timeout,
		observers: make(map[int]func(bool)),
	}
	d := &net.Dialer{}
	p.dial = d.DialContext
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsReachable runs a synchronous check. It does not change Status and
// does not notify observers.
func (p *Probe) IsReachable() bool {
	return p.check(context.Background()).Available()
}

// Status returns the status recorded by the last Poll.
func (p *Probe) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Observe registers onChange. It is called once right away with the current
// availability and then on every availability transition.
func (p *Probe) Observe(onChange func(reachable bool)) (cancel func()) {
	p.notifyMu.Lock()
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.observers[id] = onChange
	current := p.status.Available()
	p.mu.Unlock()

	onChange(current)
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Poll runs one check, records the result and notifies observers when
// availability flipped.
func (p *Probe) Poll(ctx context.Context) {
	next := p.check(ctx)

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	prev := p.status
	p.status = next
	var notify []func(bool)
	if prev.Available() != next.Available() {
		for _, fn := range p.observers {
			notify = append(notify, fn)
		}
	}
	p.mu.Unlock()

	if len(notify) == 0 {
		return
	}
	log.Printf("INFO: connectivity changed %s -> %s", prev, next)
	for _, fn := range notify {
		fn(next.Available())
	}
}

func (p *Probe) check(ctx context.Context) Status {
	if _, _, err := net.SplitHostPort(p.target); err != nil {
		log.Printf("ERROR: %v", fmt.Errorf("%w: target %q: %w", weather.ErrReachabilityCheck, p.target, err))
		return StatusNotReachable
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	conn, err := p.dial(ctx, "tcp", p.target)
	if err == nil {
		conn.Close()
		return StatusReachable
	}
	// A refusal comes from the remote host, so a route exists.
	if common.HasAny(err.Error(), "connection refused", "connection reset") {
		return StatusReachable
	}
	log.Printf("DEBUG: reachability dial %s failed: %v", p.target, err)
	return StatusNotReachable
}

var _ weather.Probe = (*Probe)(nil)
