// File: internal/sockio/accept_bsd.go
//go:build darwin

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sockio

import "golang.org/x/sys/unix"

// Accept has no atomic CLOEXEC variant here; the caller applies
// cloexec and nonblock explicitly afterwards.
func (Raw) Accept(fd int) (int, unix.Sockaddr, error) {
	return unix.Accept(fd)
}

// KeepaliveIdleOpt is the TCP option carrying the keepalive idle time.
const KeepaliveIdleOpt = unix.TCP_KEEPALIVE
