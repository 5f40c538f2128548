//go:build linux || darwin || freebsd || netbsd || openbsd

// Package conn implements the connection coroutine: the symmetric,
// suspendable request/response exchange the reactor drives per accepted
// socket (spec.md §4.3).
//
// Go goroutines are the runtime's own stackful coroutines, so the body
// below runs as one real goroutine per connection rather than a
// hand-switched user-space stack. What still has to be built by hand is the
// *symmetric transfer* discipline: at any instant, at most one of
// {the reactor goroutine, this connection's body goroutine} is actually
// doing work. That mutual exclusion comes from a pair of unbuffered
// channels used purely as a rendezvous, not as a data-passing queue:
// resume() sends on resumeCh and then blocks on parkedCh until the body
// either yields again or returns; the body blocks on resumeCh until told to
// run, and every suspension point sends on parkedCh before blocking on
// resumeCh again. Because resume() never returns before the body has
// parked, the reactor goroutine that calls resume() is always blocked for
// the entire duration the body is doing anything observable — including
// calling back into the listener. That is what makes it safe for the body
// to touch the listener's intrusive lists directly without a lock: the
// only other goroutine that ever touches them (the reactor goroutine) is
// provably parked at that moment.
package conn

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/fly-zero/docker-network-plugin-demo/internal/arena"
	"github.com/fly-zero/docker-network-plugin-demo/internal/httpadapter"
	"github.com/fly-zero/docker-network-plugin-demo/internal/intrusive"
	"github.com/fly-zero/docker-network-plugin-demo/internal/logging"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route"
)

// Status is the connection's single point-in-time state (spec.md §3).
type Status int32

const (
	StatusRunning Status = iota
	StatusWaitingRead
	StatusWaitingWrite
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusWaitingRead:
		return "WAITING_READ"
	case StatusWaitingWrite:
		return "WAITING_WRITE"
	case StatusClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Reaper is the narrow seam a Connection needs from its owning listener: a
// place to put itself once its body has returned. Defining it here (rather
// than importing the listener package) avoids an import cycle, since the
// listener needs Connection's type to hold its intrusive lists.
type Reaper interface {
	MoveToClosing(c *Connection)
}

// recvBufSize is the chunk size the body reads into, per spec.md §4.3 step
// 2 ("read up to 1 KiB into a stack buffer").
const recvBufSize = 1024

// Connection is one in-flight exchange: it owns fd exclusively, runs its
// body as a goroutine, and reports itself to its Reaper when that body
// returns.
type Connection struct {
	fd       int
	reaper   Reaper
	routes   route.Table
	log      *logging.Logger
	arena    *arena.Arena
	status   Status
	resumeCh chan struct{}
	parkedCh chan struct{}
	node     intrusive.Node[*Connection]
}

// New allocates a connection's arena, constructs it primed-but-not-started
// (spec.md §4.3 "Construction"), and launches its body goroutine, which
// immediately blocks until the first Resume.
func New(fd int, reaper Reaper, routes route.Table, stackBytes int, log *logging.Logger) (*Connection, error) {
	a, err := arena.Allocate(stackBytes)
	if err != nil {
		return nil, fmt.Errorf("conn: allocate arena: %w", err)
	}
	c := &Connection{
		fd:       fd,
		reaper:   reaper,
		routes:   routes,
		log:      log,
		arena:    a,
		status:   StatusRunning,
		resumeCh: make(chan struct{}),
		parkedCh: make(chan struct{}),
	}
	go c.body()
	return c, nil
}

// FD implements reactor.IOSource.
func (c *Connection) FD() int { return c.fd }

// Status returns the connection's current status. Safe to call only from
// the reactor goroutine (i.e. not concurrently with a Resume it issued).
func (c *Connection) Status() Status { return c.status }

// Node exposes the intrusive-list hook so a listener can hold Connection on
// its active/closing lists without allocating.
func (c *Connection) Node() *intrusive.Node[*Connection] { return &c.node }

// Start issues the initial resume that enters the body for the first time
// (spec.md §4.4 step 4: "subscribe it with the reactor for readable|writable,
// and immediately resume it"). The listener must call this exactly once,
// synchronously, right after subscribing the connection with the reactor —
// never in response to a readiness event.
func (c *Connection) Start() { c.resume() }

// OnReadable implements reactor.IOSource: resume iff waiting on a read.
func (c *Connection) OnReadable() {
	switch c.status {
	case StatusWaitingRead:
		c.resume()
	case StatusRunning:
		panic("conn: observed RUNNING from the reactor; scheduling invariant violated")
	}
}

// OnWritable implements reactor.IOSource: resume iff waiting on a write.
func (c *Connection) OnWritable() {
	switch c.status {
	case StatusWaitingWrite:
		c.resume()
	case StatusRunning:
		panic("conn: observed RUNNING from the reactor; scheduling invariant violated")
	}
}

// resume sets status to RUNNING first, then hands control to the body, and
// blocks until the body parks again (spec.md §4.3: "resume() sets status
// RUNNING first, then transfers control into the body").
func (c *Connection) resume() {
	c.status = StatusRunning
	c.resumeCh <- struct{}{}
	<-c.parkedCh
}

// yield sets status first, then gives control back to whichever resume()
// call is waiting, and blocks until resumed again (spec.md §4.3: "yield(status)
// sets the status first, then transfers control to the sink").
func (c *Connection) yield(status Status) {
	c.status = status
	c.parkedCh <- struct{}{}
	<-c.resumeCh
}

// body is the coroutine: it waits to be primed, runs the exchange, and
// reports itself closing exactly once, after it has fully unwound — never
// from a point where it might still touch its own arena afterward (spec.md
// §4.3 "Critical invariant").
func (c *Connection) body() {
	<-c.resumeCh // primed but not started, per spec.md §4.3 "Construction"

	if err := c.run(); err != nil {
		c.log.Warnf("conn fd=%d: %v", c.fd, err)
	}

	c.status = StatusClosing
	c.reaper.MoveToClosing(c)
	c.parkedCh <- struct{}{}
	// The body goroutine now exits. Nothing after this point may touch c's
	// arena; the listener's next tick reaps it (spec.md §4.4 "on_tick").
}

// run is the request/response exchange proper (spec.md §4.3 "Body").
func (c *Connection) run() error {
	req := httpadapter.NewRequest()
	buf := c.arena.Buffer()
	if len(buf) > recvBufSize {
		buf = buf[:recvBufSize]
	}

	for !req.Complete() {
		n, wouldBlock, err := c.recv(buf)
		if err != nil {
			return fmt.Errorf("recv: %w", err)
		}
		if wouldBlock {
			continue
		}
		if n == 0 {
			return errors.New("peer closed before request was complete")
		}
		if err := req.Feed(buf[:n]); err != nil {
			return fmt.Errorf("parse: %w", err)
		}
	}

	resp := httpadapter.NewResponse()
	if fn, user, ok := c.routes.Lookup(req.URI); ok {
		if !fn(user, req, resp) {
			c.log.Warnf("conn fd=%d: handler for %q reported failure, sending its response as-is", c.fd, req.URI)
		}
	}
	// else: leave resp at its NewResponse() default (200, empty body) — the
	// documented unknown-URI fallback (spec.md §7).

	if err := c.send(httpadapter.Serialize(resp)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// recv issues one non-blocking read. wouldBlock distinguishes "the socket
// had nothing to offer this round, try again" from a true n==0 peer-closed
// EOF; collapsing the two (as the project this was adapted from does) means
// every read suspension looks identical to the peer hanging up. spec.md's
// own prose resolves the ambiguity explicitly ("the caller loop retries by
// reading again after resume"), so this implementation keeps the two
// signals distinct instead of reproducing that bug.
func (c *Connection) recv(buf []byte) (n int, wouldBlock bool, err error) {
	n, err = unix.Read(c.fd, buf)
	if err == nil {
		return n, false, nil
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		c.yield(StatusWaitingRead)
		return 0, true, nil
	}
	return 0, false, fmt.Errorf("recv: %w", err)
}

// send is the write-all loop (spec.md §4.3 "send").
func (c *Connection) send(buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(c.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				c.yield(StatusWaitingWrite)
				continue
			}
			return fmt.Errorf("send: %w", err)
		}
		if n == 0 {
			return errors.New("send: wrote zero bytes")
		}
		buf = buf[n:]
	}
	return nil
}

// ForceClosing transitions the connection to CLOSING without running its
// body to completion, used by graceful shutdown (spec.md §6 "Process
// exit"). It only sets the status; it never touches the body's stack from
// the outside. OnReadable and OnWritable do not resume a CLOSING
// connection, so a body parked at a recv/send suspension is not resumed
// again and does not reach its natural exit.
func (c *Connection) ForceClosing() {
	if c.status != StatusClosing {
		c.status = StatusClosing
	}
}

// Release closes the file descriptor and releases the arena. The listener
// must call this only after the body has fully returned (i.e. after
// MoveToClosing was observed), per spec.md's "never destroyed from inside
// its own coroutine" invariant.
func (c *Connection) Release() error {
	cerr := unix.Close(c.fd)
	aerr := c.arena.Release()
	if cerr != nil {
		return fmt.Errorf("conn: close fd=%d: %w", c.fd, cerr)
	}
	return aerr
}
