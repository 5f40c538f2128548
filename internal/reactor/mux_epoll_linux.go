//go:build linux

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// errInterrupted classifies the multiplexer's interrupt-class wake-up
// (spec.md §7, "Reactor-transient"): the caller should silently retry.
var errInterrupted = unix.EINTR

type epollMux struct {
	fd int
}

func newMultiplexer() (multiplexer, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollMux{fd: fd}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32 = unix.EPOLLET
	if mask.has(Readable) {
		ev |= unix.EPOLLIN
	}
	if mask.has(Writable) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (m *epollMux) add(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(m.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	return nil
}

func (m *epollMux) remove(fd int) error {
	// Linux ignores the event argument on EPOLL_CTL_DEL but pre-2.6.9
	// kernels required a non-nil pointer; keep passing one for safety.
	return unix.EpollCtl(m.fd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (m *epollMux) wait(out []readyEvent, timeout time.Duration) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(m.fd, raw, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, errInterrupted
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		var mask EventMask
		if raw[i].Events&unix.EPOLLIN != 0 {
			mask |= Readable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			// Surface a hung-up or errored descriptor as both directions
			// ready; the owning source's recv/send will observe the real
			// errno and raise a per-connection failure.
			mask |= Readable | Writable
		}
		out[i] = readyEvent{fd: int(raw[i].Fd), mask: mask}
	}
	return n, nil
}

func (m *epollMux) close() error {
	return unix.Close(m.fd)
}
