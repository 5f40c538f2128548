// Package reactor implements the single-threaded, edge-triggered I/O event
// loop: one multiplexer, any number of registered file-descriptor sources,
// and a list of per-iteration tick subscribers.
package reactor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// EventMask selects which readiness transitions a source is registered for.
type EventMask uint8

const (
	Readable EventMask = 1 << iota
	Writable
)

func (m EventMask) has(bit EventMask) bool { return m&bit != 0 }

// IOSource is a descriptor-owning handle with edge-triggered readiness
// hooks. Implementations must keep FD() open for as long as the source is
// registered with a Reactor.
type IOSource interface {
	FD() int
	OnReadable()
	OnWritable()
}

// TickSubscriber is invoked once per reactor iteration, after all I/O events
// of that iteration have been dispatched.
type TickSubscriber interface {
	OnTick()
}

var (
	// ErrAlreadyRegistered is returned by SubscribeIO/SubscribeTick when the
	// source or subscriber is already registered.
	ErrAlreadyRegistered = errors.New("reactor: already registered")
	// ErrNotRegistered is returned by UnsubscribeIO when the descriptor was
	// never (or no longer) registered.
	ErrNotRegistered = errors.New("reactor: not registered")
)

const (
	maxEventsPerWait = 64
	waitTimeout      = 50 * time.Millisecond
)

// Reactor is the event loop. It must be constructed with New and its
// IOSource/TickSubscriber registration methods used from a single goroutine
// (Run blocks that goroutine until Stop). Stop is the one method meant to be
// called from a different goroutine — e.g. a signal handler — so running is
// an atomic.Bool rather than a plain bool.
type Reactor struct {
	mux     multiplexer
	sources map[int]IOSource
	ticks   []TickSubscriber
	tickSet map[TickSubscriber]struct{}
	running atomic.Bool
	stopped chan struct{}
}

// New creates a Reactor backed by the platform's native multiplexer (epoll
// on Linux, kqueue on the BSDs and Darwin).
func New() (*Reactor, error) {
	mux, err := newMultiplexer()
	if err != nil {
		return nil, fmt.Errorf("reactor: open multiplexer: %w", err)
	}
	return &Reactor{
		mux:     mux,
		sources: make(map[int]IOSource),
		tickSet: make(map[TickSubscriber]struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// SubscribeIO registers source edge-triggered for the given mask. Source
// must not already be registered under the same descriptor.
func (r *Reactor) SubscribeIO(source IOSource, mask EventMask) error {
	fd := source.FD()
	if _, exists := r.sources[fd]; exists {
		return ErrAlreadyRegistered
	}
	if err := r.mux.add(fd, mask); err != nil {
		return fmt.Errorf("reactor: subscribe fd %d: %w", fd, err)
	}
	r.sources[fd] = source
	return nil
}

// UnsubscribeIO removes source's descriptor from the multiplexer.
func (r *Reactor) UnsubscribeIO(source IOSource) error {
	fd := source.FD()
	if _, exists := r.sources[fd]; !exists {
		return ErrNotRegistered
	}
	if err := r.mux.remove(fd); err != nil {
		return fmt.Errorf("reactor: unsubscribe fd %d: %w", fd, err)
	}
	delete(r.sources, fd)
	return nil
}

// SubscribeTick appends sub to the tick list if it is not already present.
func (r *Reactor) SubscribeTick(sub TickSubscriber) error {
	if _, exists := r.tickSet[sub]; exists {
		return ErrAlreadyRegistered
	}
	r.tickSet[sub] = struct{}{}
	r.ticks = append(r.ticks, sub)
	return nil
}

// UnsubscribeTick removes sub from the tick list if present, reporting
// whether it was found.
func (r *Reactor) UnsubscribeTick(sub TickSubscriber) bool {
	if _, exists := r.tickSet[sub]; !exists {
		return false
	}
	delete(r.tickSet, sub)
	for i, s := range r.ticks {
		if s == sub {
			r.ticks = append(r.ticks[:i], r.ticks[i+1:]...)
			break
		}
	}
	return true
}

// Run executes the event loop until Stop is called or the multiplexer
// reports an unrecoverable error. One iteration: wait up to
// maxEventsPerWait events with a 50ms timeout; dispatch readable before
// writable for each ready descriptor; then invoke every tick subscriber in
// subscription order.
func (r *Reactor) Run() error {
	r.running.Store(true)
	defer close(r.stopped)

	events := make([]readyEvent, maxEventsPerWait)
	for r.running.Load() {
		n, err := r.mux.wait(events, waitTimeout)
		if err != nil {
			if errors.Is(err, errInterrupted) {
				continue
			}
			return fmt.Errorf("reactor: wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			source, ok := r.sources[ev.fd]
			if !ok {
				continue // raced with a concurrent Unsubscribe during this iteration
			}
			if ev.mask.has(Readable) {
				source.OnReadable()
			}
			if ev.mask.has(Writable) {
				source.OnWritable()
			}
		}

		for _, t := range r.ticks {
			t.OnTick()
		}
	}
	return nil
}

// Stop requests a cooperative halt: Run returns after finishing its current
// iteration. Safe to call from any goroutine, including concurrently with
// Run.
func (r *Reactor) Stop() {
	r.running.Store(false)
}

// Close releases the underlying multiplexer descriptor. Call after Run has
// returned.
func (r *Reactor) Close() error {
	return r.mux.close()
}
