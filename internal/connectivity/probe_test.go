package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type switchDialer struct {
	mu  sync.Mutex
	err error
}

func (d *switchDialer) set(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *switchDialer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func TestIsReachableWithListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	p := NewProbe(ln.Addr().String(), time.Second)
	if !p.IsReachable() {
		t.Fatal("expected reachable")
	}
	if p.Status() != StatusUnknown {
		t.Fatalf("IsReachable must not change status, got %s", p.Status())
	}
}

func TestRefusedCountsAsReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := NewProbe(addr, time.Second)
	if !p.IsReachable() {
		t.Fatal("connection refused should count as reachable")
	}
}

func TestDialFailureIsNotReachable(t *testing.T) {
	d := &switchDialer{err: errors.New("dial tcp: network is unreachable")}
	p := NewProbe("1.1.1.1:53", time.Second, WithDialer(d.dial))
	if p.IsReachable() {
		t.Fatal("expected not reachable")
	}
}

func TestInvalidTargetIsNotReachable(t *testing.T) {
	p := NewProbe("no-port-here", time.Second)
	if p.IsReachable() {
		t.Fatal("expected not reachable for an unusable target")
	}
}

func TestObserveReportsOnlyTransitions(t *testing.T) {
	d := &switchDialer{}
	p := NewProbe("1.1.1.1:53", time.Second, WithDialer(d.dial))

	var mu sync.Mutex
	var got []bool
	cancel := p.Observe(func(r bool) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	defer cancel()

	ctx := context.Background()
	p.Poll(ctx) // unknown -> reachable, silent
	d.set(errors.New("no route to host"))
	p.Poll(ctx) // -> not reachable
	p.Poll(ctx) // unchanged
	d.set(nil)
	p.Poll(ctx) // -> reachable
	p.Poll(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if p.Status() != StatusReachable {
		t.Fatalf("unexpected status %s", p.Status())
	}
}

func TestObserveEndsOnCurrentAvailability(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := &switchDialer{}
		p := NewProbe("1.1.1.1:53", time.Second, WithDialer(d.dial))

		polled := make(chan struct{})
		go func() {
			defer close(polled)
			for j := 0; j < 20; j++ {
				if j%2 == 0 {
					d.set(errors.New("no route to host"))
				} else {
					d.set(nil)
				}
				p.Poll(context.Background())
			}
		}()

		var mu sync.Mutex
		var last bool
		cancel := p.Observe(func(r bool) {
			mu.Lock()
			last = r
			mu.Unlock()
		})
		<-polled
		cancel()

		mu.Lock()
		got := last
		mu.Unlock()
		if want := p.Status().Available(); got != want {
			t.Fatalf("iteration %d: observer holds %v, status is %s", i, got, p.Status())
		}
	}
}

func TestObserveCancel(t *testing.T) {
	d := &switchDialer{}
	p := NewProbe("1.1.1.1:53", time.Second, WithDialer(d.dial))

	calls := 0
	cancel := p.Observe(func(bool) { calls++ })
	cancel()
	cancel()

	d.set(errors.New("no route to host"))
	p.Poll(context.Background())
	if calls != 1 {
		t.Fatalf("expected only the initial call, got %d", calls)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUnknown:      "unknown",
		StatusReachable:    "reachable",
		StatusNotReachable: "not_reachable",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d: got %s, want %s", s, s.String(), want)
		}
	}
}
