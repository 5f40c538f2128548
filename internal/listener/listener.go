//go:build linux || darwin || freebsd || netbsd || openbsd

// Package listener implements the accept loop: an I/O source bound to a
// UNIX socket path or TCP port that accepts new connections, allocates
// their arenas, registers them with the reactor, and reaps them once their
// coroutine bodies have returned (spec.md §4.4).
package listener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"github.com/fly-zero/docker-network-plugin-demo/internal/config"
	"github.com/fly-zero/docker-network-plugin-demo/internal/conn"
	"github.com/fly-zero/docker-network-plugin-demo/internal/intrusive"
	"github.com/fly-zero/docker-network-plugin-demo/internal/logging"
	"github.com/fly-zero/docker-network-plugin-demo/internal/reactor"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route"
)

// listenBacklog is the fixed listen(2) backlog (spec.md §6).
const listenBacklog = 128

// Listener is the reactor's accept-path I/O source. It exclusively owns the
// active and closing intrusive lists; every mutation of those lists happens
// on the reactor goroutine, either directly here or from inside a
// connection's body while that body's resume() caller (the reactor
// goroutine) is provably blocked (see internal/conn's package doc).
type Listener struct {
	fd         int
	reactor    *reactor.Reactor
	routes     route.Table
	log        *logging.Logger
	stackBytes int
	live       *config.Live

	admission    *semaphore.Weighted
	admissionCap int64 // cap last synced to; left stale while over-subscribed; -1 means "not yet synced"

	active  intrusive.List[*conn.Connection]
	closing intrusive.List[*conn.Connection]

	fatalErr error
}

// Config bundles the knobs New needs beyond the reactor and route table.
type Config struct {
	// Listen is either a filesystem path (treated as a UNIX socket) or a
	// "tcp://host:port" URL.
	Listen string
	// StackBytes is the per-connection arena size passed to conn.New.
	StackBytes int
}

// New binds and listens on cfg.Listen and returns a Listener ready to be
// subscribed with r for readability. Admission is governed by live, not by
// cfg, so that config.Watch's hot-reloaded max_connections actually takes
// effect (spec.md: "the connection cap ... can be hot-swapped").
func New(r *reactor.Reactor, routes route.Table, log *logging.Logger, live *config.Live, cfg Config) (*Listener, error) {
	fd, err := bind(cfg.Listen)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		fd:           fd,
		reactor:      r,
		routes:       routes,
		log:          log,
		stackBytes:   cfg.StackBytes,
		live:         live,
		admissionCap: -1,
	}
	l.syncAdmissionCap()
	return l, nil
}

// syncAdmissionCap rebuilds the admission semaphore whenever live's
// MaxConnections has changed since the last sync. Because a
// semaphore.Weighted can't be resized in place, a live cap change is applied
// by building a fresh one at the new size and pre-acquiring weight equal to
// the connections already active, so in-flight connections are accounted
// for without needing to move live permits between semaphores. If the new
// cap is lower than the current active count, the pre-acquire fails and the
// listener simply stays over-subscribed until enough connections close to
// fit under the new cap — the next accept after that will re-synchronize
// cleanly.
func (l *Listener) syncAdmissionCap() {
	want := l.live.MaxConnections.Load()
	if want == l.admissionCap {
		return
	}
	if want <= 0 {
		l.admissionCap = want
		l.admission = nil
		return
	}
	n := int64(l.active.Len())
	if n > want {
		l.log.Warnf("listener: max_connections lowered to %d below current active count %d; over-subscribed until connections close", want, n)
		// A fully held semaphore sized to the active count admits nothing
		// new and absorbs one Release per reaped connection. admissionCap is
		// left stale so the next accept tries again.
		sem := semaphore.NewWeighted(n)
		sem.TryAcquire(n)
		l.admission = sem
		return
	}
	l.admissionCap = want
	sem := semaphore.NewWeighted(want)
	if n > 0 {
		sem.TryAcquire(n)
	}
	l.admission = sem
}

// bind creates, binds, and listens on either a UNIX socket path or a
// "tcp://host:port" address, per spec.md §6: for UNIX sockets any
// pre-existing file at the path is removed first; backlog is fixed at 128.
func bind(listen string) (int, error) {
	if strings.HasPrefix(listen, "tcp://") {
		return bindTCP(strings.TrimPrefix(listen, "tcp://"))
	}
	return bindUnix(listen)
}

func bindUnix(path string) (int, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return -1, fmt.Errorf("listener: remove stale socket %s: %w", path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("listener: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: set nonblocking: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: listen %s: %w", path, err)
	}
	return fd, nil
}

func bindTCP(hostport string) (int, error) {
	host, portStr, found := strings.Cut(hostport, ":")
	if !found {
		return -1, fmt.Errorf("listener: malformed tcp address %q", hostport)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, fmt.Errorf("listener: malformed tcp port %q: %w", portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("listener: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: set nonblocking: %w", err)
	}

	var addr unix.SockaddrInet4
	addr.Port = port
	if host != "" && host != "0.0.0.0" {
		ip := parseIPv4(host)
		addr.Addr = ip
	}
	if err := unix.Bind(fd, &addr); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: bind %s: %w", hostport, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listener: listen %s: %w", hostport, err)
	}
	return fd, nil
}

func parseIPv4(host string) [4]byte {
	var out [4]byte
	parts := strings.SplitN(host, ".", 4)
	for i := 0; i < len(parts) && i < 4; i++ {
		n, _ := strconv.Atoi(parts[i])
		out[i] = byte(n)
	}
	return out
}

// FD implements reactor.IOSource.
func (l *Listener) FD() int { return l.fd }

// OnWritable implements reactor.IOSource: the listening socket is never
// registered for writability, so this is unreachable in practice; it is a
// no-op per spec.md §4.4.
func (l *Listener) OnWritable() {}

// Err returns the fatal error that stopped the accept loop, if any (spec.md
// §7 kind 1: "errors inside the listener's accept path are fatal ... and
// are surfaced"). The reactor is asked to Stop as soon as such an error is
// recorded; the caller should check Err after Run returns.
func (l *Listener) Err() error { return l.fatalErr }

// OnReadable implements reactor.IOSource: drains accept4 (or its platform
// equivalent) until EAGAIN, admitting one connection per ready client
// (spec.md §4.4 "on_readable").
func (l *Listener) OnReadable() {
	l.syncAdmissionCap()
	for {
		fd, err := acceptNonblockingCloExec(l.fd)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			l.fatalErr = fmt.Errorf("listener: accept4: %w", err)
			l.reactor.Stop()
			return
		}

		if l.admission != nil && !l.admission.TryAcquire(1) {
			l.log.Warnf("listener: connection limit reached, rejecting fd=%d", fd)
			_ = unix.Close(fd)
			continue
		}

		if err := l.admit(fd); err != nil {
			l.log.Errorf("listener: admit fd=%d: %v", fd, err)
			if l.admission != nil {
				l.admission.Release(1)
			}
			_ = unix.Close(fd)
		}
	}
}

// admit allocates a connection for fd, links it onto the active list,
// subscribes it with the reactor, and immediately resumes it once (spec.md
// §4.4 steps 4-5).
func (l *Listener) admit(fd int) error {
	c, err := conn.New(fd, l, l.routes, l.stackBytes, l.log)
	if err != nil {
		return fmt.Errorf("allocate connection: %w", err)
	}

	l.active.PushBack(c.Node(), c)

	if err := l.reactor.SubscribeIO(c, reactor.Readable|reactor.Writable); err != nil {
		l.active.Remove(c.Node())
		_ = c.Release()
		return fmt.Errorf("subscribe: %w", err)
	}

	c.Start()
	return nil
}

// MoveToClosing implements conn.Reaper. It is called from inside a
// connection's body goroutine, which is safe only because the reactor
// goroutine that resumed that body is blocked for the entire duration (see
// internal/conn's package doc for why).
func (l *Listener) MoveToClosing(c *conn.Connection) {
	intrusive.MoveTo(&l.closing, c.Node())
}

// OnTick implements reactor.TickSubscriber: drains the closing list,
// unsubscribing and releasing each connection (spec.md §4.4 "on_tick").
// Reaping happens strictly after a connection's body has returned, so its
// arena is only unmapped once nothing can still touch it.
func (l *Listener) OnTick() {
	for _, c := range l.closing.PopAll() {
		if err := l.reactor.UnsubscribeIO(c); err != nil && !errors.Is(err, reactor.ErrNotRegistered) {
			l.log.Warnf("listener: unsubscribe fd=%d: %v", c.FD(), err)
		}
		if err := c.Release(); err != nil {
			l.log.Warnf("listener: release fd=%d: %v", c.FD(), err)
		}
		if l.admission != nil {
			l.admission.Release(1)
		}
	}
}

// ActiveCount reports the number of connections currently on the active
// list, for metrics and tests.
func (l *Listener) ActiveCount() int { return l.active.Len() }

// Shutdown force-transitions every active connection to CLOSING and queues
// it directly for reaping (spec.md §6 "Process exit": "graceful shutdown
// requires marking every connection CLOSING and letting one final tick
// reap them"). A body whose coroutine is still parked mid-exchange is not
// waited for — the process is exiting, so the abandoned goroutine is simply
// dropped along with it, and its fd/arena are reclaimed here instead of at
// natural body return. The caller's reactor loop must run at least one more
// tick afterward for OnTick to actually drain what this queues.
func (l *Listener) Shutdown(ctx context.Context) error {
	for _, c := range l.active.PopAll() {
		c.ForceClosing()
		l.closing.PushBack(c.Node(), c)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Close closes the listening socket. Call after the reactor has stopped.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}
