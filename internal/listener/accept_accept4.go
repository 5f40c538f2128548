//go:build linux || freebsd || netbsd || openbsd

package listener

import "golang.org/x/sys/unix"

// acceptNonblockingCloExec accepts one pending connection, atomically
// marking it non-blocking and close-on-exec via accept4 (spec.md §6:
// "Accepted client sockets: non-blocking, close-on-exec").
func acceptNonblockingCloExec(listenFD int) (int, error) {
	fd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return fd, err
}
