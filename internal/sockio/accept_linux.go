// File: internal/sockio/accept_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sockio

import "golang.org/x/sys/unix"

// Accept prefers the atomic accept4 with SOCK_CLOEXEC|SOCK_NONBLOCK
// and falls back to plain accept on kernels without it. The caller
// still applies cloexec and nonblock explicitly after the fallback
// path.
func (Raw) Accept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err == unix.ENOSYS {
		return unix.Accept(fd)
	}
	return nfd, sa, err
}

// KeepaliveIdleOpt is the TCP option carrying the keepalive idle time.
const KeepaliveIdleOpt = unix.TCP_KEEPIDLE
