// File: internal/sockio/sockio_unix.go
//go:build linux || darwin

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sockio

import "golang.org/x/sys/unix"

// Raw is the production implementation over raw syscalls.
type Raw struct{}

// Default is the implementation descriptors use unless a test injects
// a fake.
var Default Interface = Raw{}

func (Raw) Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func (Raw) Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func (Raw) Writev(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}

func (Raw) Recvfrom(fd int, p []byte) (int, unix.Sockaddr, error) {
	n, from, err := unix.Recvfrom(fd, p, 0)
	return n, from, err
}

func (Raw) Sendto(fd int, p []byte, to unix.Sockaddr) error {
	return unix.Sendto(fd, p, 0, to)
}

func (Raw) GetsockoptInt(fd, level, opt int) (int, error) {
	return unix.GetsockoptInt(fd, level, opt)
}

func (Raw) SetsockoptInt(fd, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

func (Raw) Shutdown(fd, how int) error {
	return unix.Shutdown(fd, how)
}

func (Raw) Close(fd int) error {
	return unix.Close(fd)
}

func (Raw) SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// SetCloexec OR-merges FD_CLOEXEC into the existing descriptor flags.
func (Raw) SetCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}

func (Raw) Getpeername(fd int) (unix.Sockaddr, error) {
	return unix.Getpeername(fd)
}

func (Raw) Getsockname(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}
