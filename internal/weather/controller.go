package weather

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

type eventKind int

const (
	eventLocationUpdated eventKind = iota
	eventConnectivityChanged
	eventFetchCompleted
)

type event struct {
	kind      eventKind
	at        Coordinates
	reachable bool

	// fetch completion
	seq uint64
	rec Record
	err error
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver routes fetch, persistence, publication and reachability
// outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithStaleRejection drops a fetch that completes after a fetch started later
// has already been applied. When disabled the last completed fetch wins.
func WithStaleRejection(enabled bool) Option {
	return func(c *Controller) {
		c.rejectStale = enabled
	}
}

// Controller keeps the displayed weather in sync with the device location.
// All of its state is owned by the goroutine running Run; fetches run on their
// own goroutines and hand their result back through the event channel.
type Controller struct {
	provider Provider
	store    Store
	probe    Probe
	locator  Locator
	observer Observer
	hub      *Hub

	rejectStale bool

	events   chan event
	done     chan struct{}
	started  atomic.Bool
	inflight sync.WaitGroup

	// owned by the Run goroutine
	reachable  bool
	seq        uint64
	appliedSeq uint64
}

// NewController creates a Controller. Nothing happens until Run is called.
func NewController(provider Provider, store Store, probe Probe, locator Locator, opts ...Option) *Controller {
	c := &Controller{
		provider: provider,
		store:    store,
		probe:    probe,
		locator:  locator,
		observer: nopObserver{},
		hub:      NewHub(),
		events:   make(chan event, 32),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a display callback; see Hub.Subscribe.
func (c *Controller) Subscribe(fn func(Record)) (unsubscribe func()) {
	return c.hub.Subscribe(fn)
}

// Latest returns the record currently on display.
func (c *Controller) Latest() (Record, bool) {
	return c.hub.Latest()
}

// LocationUpdated queues a new coordinate fix. It is safe to call from any goroutine.
func (c *Controller) LocationUpdated(at Coordinates) {
	c.post(event{kind: eventLocationUpdated, at: at})
}

// ConnectivityChanged queues a reachability transition.
func (c *Controller) ConnectivityChanged(reachable bool) {
	c.post(event{kind: eventConnectivityChanged, reachable: reachable})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Run processes events until ctx is cancelled, then waits for in-flight
// fetches to return. A Controller can only be run once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}

	c.reachable = c.probe.IsReachable()
	c.observer.ObserveReachability(c.reachable)
	if !c.reachable {
		c.publishCached(ctx)
	}

	c.locator.Listen(c.LocationUpdated)
	stopObserving := c.probe.Observe(c.ConnectivityChanged)
	defer stopObserving()

	c.requestLocation(ctx)

	for {
		select {
		case <-ctx.Done():
			close(c.done)
			c.inflight.Wait()
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventLocationUpdated:
		c.startFetch(ctx, ev.at)
	case eventFetchCompleted:
		c.completeFetch(ctx, ev)
	case eventConnectivityChanged:
		c.connectivityChanged(ctx, ev.reachable)
	}
}

func (c *Controller) startFetch(ctx context.Context, at Coordinates) {
	c.seq++
	seq := c.seq

	log.Printf("DEBUG: fetch #%d started for %s via %s", seq, at, c.provider.Name())

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		rec, err := c.provider.Fetch(ctx, at)
		c.post(event{kind: eventFetchCompleted, at: at, seq: seq, rec: rec, err: err})
	}()
}

func (c *Controller) completeFetch(ctx context.Context, ev event) {
	c.observer.ObserveFetch(ev.at, ev.err)
	if ev.err != nil {
		// Keep whatever is on display; the next location fix tries again.
		log.Printf("ERROR: fetch #%d for %s failed: %v", ev.seq, ev.at, ev.err)
		return
	}

	if c.rejectStale && ev.seq < c.appliedSeq {
		log.Printf("INFO: dropping fetch #%d for %s; fetch #%d already applied", ev.seq, ev.at, c.appliedSeq)
		return
	}
	if ev.seq > c.appliedSeq {
		c.appliedSeq = ev.seq
	}

	err := c.store.Upsert(ctx, ev.rec)
	c.observer.ObservePersist(ev.rec, err)
	if err != nil {
		log.Printf("ERROR: caching weather for %s failed: %v", ev.rec.CityName, err)
	}

	c.hub.Publish(ev.rec)
	c.observer.ObservePublish(ev.rec)
}

func (c *Controller) connectivityChanged(ctx context.Context, reachable bool) {
	if reachable == c.reachable {
		return
	}
	c.reachable = reachable
	c.observer.ObserveReachability(reachable)

	if !reachable {
		log.Printf("INFO: network not reachable; keeping current weather on display")
		return
	}
	log.Printf("INFO: network reachable again; requesting a location update")
	c.requestLocation(ctx)
}

func (c *Controller) requestLocation(ctx context.Context) {
	if err := c.locator.RequestLocation(ctx); err != nil {
		log.Printf("ERROR: location request failed: %v", err)
	}
}

func (c *Controller) publishCached(ctx context.Context) {
	rec, err := c.store.LoadCurrent(ctx)
	switch {
	case errors.Is(err, ErrNoCachedRecord):
		log.Printf("INFO: offline and no cached weather to show")
	case err != nil:
		log.Printf("ERROR: loading cached weather failed: %v", err)
	default:
		log.Printf("INFO: offline; showing cached weather for %s", rec.CityName)
		c.hub.Publish(rec)
		c.observer.ObservePublish(rec)
	}
}
