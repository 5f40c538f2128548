package reactor

import "time"

// readyEvent is the multiplexer-agnostic readiness notification: which
// descriptor, which directions.
type readyEvent struct {
	fd   int
	mask EventMask
}

// multiplexer is the seam between Reactor and the OS-specific readiness
// notifier (epoll, kqueue, ...). All registrations are edge-triggered.
type multiplexer interface {
	add(fd int, mask EventMask) error
	remove(fd int) error
	wait(out []readyEvent, timeout time.Duration) (n int, err error)
	close() error
}
