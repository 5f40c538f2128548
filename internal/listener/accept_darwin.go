//go:build darwin

package listener

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// acceptNonblockingCloExec accepts one pending connection. Darwin has no
// accept4 syscall, so non-blocking and close-on-exec are applied as two
// separate fcntl calls immediately after a plain accept — the same
// workaround the standard library's own net package uses on this platform.
func acceptNonblockingCloExec(listenFD int) (int, error) {
	fd, _, err := unix.Accept(listenFD)
	if err != nil {
		return -1, err
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("fcntl FD_CLOEXEC: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set nonblocking: %w", err)
	}
	return fd, nil
}
