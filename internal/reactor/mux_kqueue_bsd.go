//go:build darwin || freebsd || netbsd || openbsd

package reactor

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

var errInterrupted = unix.EINTR

// kqueue has no native edge-triggered "both directions in one filter"
// concept the way epoll does; we register EVFILT_READ/EVFILT_WRITE
// independently with EV_CLEAR (kqueue's edge-triggered flag) per direction
// requested in the mask, mirroring the teacher's kqueue poller
// (internal/runtime/asyncio/kqueue_poller_bsd.go) adapted to a single
// Reactor.
type kqueueMux struct {
	fd int
}

func newMultiplexer() (multiplexer, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &kqueueMux{fd: fd}, nil
}

func (m *kqueueMux) add(fd int, mask EventMask) error {
	var changes []unix.Kevent_t
	if mask.has(Readable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR})
	}
	if mask.has(Writable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR})
	}
	if len(changes) == 0 {
		return errors.New("kqueue: empty mask")
	}
	_, err := unix.Kevent(m.fd, changes, nil, nil)
	return err
}

func (m *kqueueMux) remove(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Deleting a filter that was never added returns ENOENT; that's
	// expected whenever a source only registered one direction, so it is
	// filtered out rather than treated as a failed unsubscribe.
	if _, err := unix.Kevent(m.fd, changes, nil, nil); err != nil && !errors.Is(err, unix.ENOENT) {
		return err
	}
	return nil
}

func (m *kqueueMux) wait(out []readyEvent, timeout time.Duration) (int, error) {
	raw := make([]unix.Kevent_t, len(out))
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(m.fd, nil, raw, &ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, errInterrupted
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		var mask EventMask
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			mask = Readable
		case unix.EVFILT_WRITE:
			mask = Writable
		}
		if raw[i].Flags&unix.EV_ERROR != 0 {
			mask = Readable | Writable
		}
		out[i] = readyEvent{fd: int(raw[i].Ident), mask: mask}
	}
	return n, nil
}

func (m *kqueueMux) close() error {
	return unix.Close(m.fd)
}
