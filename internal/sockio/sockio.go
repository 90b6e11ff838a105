// File: internal/sockio/sockio.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package sockio is the seam between descriptors and the kernel. It
// covers exactly the syscall surface the descriptor layer touches, so
// the I/O state machines can be driven by a scripted fake in tests and
// by raw nonblocking syscalls in production.
package sockio

import "golang.org/x/sys/unix"

// Interface is the kernel surface consumed by descriptors. All calls
// are nonblocking; a would-block condition surfaces as unix.EAGAIN.
type Interface interface {
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	// Writev performs one scatter-gather write over iovs and returns
	// the total byte count written.
	Writev(fd int, iovs [][]byte) (int, error)

	Recvfrom(fd int, p []byte) (int, unix.Sockaddr, error)
	Sendto(fd int, p []byte, to unix.Sockaddr) error

	// Accept returns a new handle already configured close-on-exec
	// and nonblocking where the platform can do so atomically; the
	// caller still applies both explicitly as a fallback.
	Accept(fd int) (int, unix.Sockaddr, error)

	GetsockoptInt(fd, level, opt int) (int, error)
	SetsockoptInt(fd, level, opt, value int) error

	Shutdown(fd, how int) error
	Close(fd int) error

	SetNonblock(fd int, nonblocking bool) error
	SetCloexec(fd int) error

	Getpeername(fd int) (unix.Sockaddr, error)
	Getsockname(fd int) (unix.Sockaddr, error)
}

// IsTransient reports whether err is a retry-later condition: the
// per-tick I/O loop breaks on these and waits for the next readiness
// event instead of treating them as terminal.
func IsTransient(err error) bool {
	switch err {
	case unix.EAGAIN, unix.EINTR, unix.EINPROGRESS:
		return true
	}
	return false
}

// Errno extracts the OS error number for unbind-reason reporting.
// Non-errno failures map to EIO.
func Errno(err error) int {
	if e, ok := err.(unix.Errno); ok {
		return int(e)
	}
	return int(unix.EIO)
}
