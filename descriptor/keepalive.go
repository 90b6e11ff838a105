// File: descriptor/keepalive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/internal/sockio"
)

// EnableKeepalive turns on SO_KEEPALIVE and, where exposed, the probe
// tuning options. Zero values keep the system default; negative values
// skip the option entirely. Failures surface with the OS message and
// leave the descriptor otherwise unaffected.
func (d *Base) EnableKeepalive(idle, intvl, cnt int) error {
	if err := d.io.SetsockoptInt(d.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return fmt.Errorf("unable to enable keepalive: %w", err)
	}
	if idle > 0 {
		if err := d.io.SetsockoptInt(d.fd, unix.IPPROTO_TCP, sockio.KeepaliveIdleOpt, idle); err != nil {
			return fmt.Errorf("unable set keepalive idle: %w", err)
		}
	}
	if intvl > 0 {
		if err := d.io.SetsockoptInt(d.fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intvl); err != nil {
			return fmt.Errorf("unable set keepalive interval: %w", err)
		}
	}
	if cnt > 0 {
		if err := d.io.SetsockoptInt(d.fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cnt); err != nil {
			return fmt.Errorf("unable set keepalive count: %w", err)
		}
	}
	return nil
}

// DisableKeepalive clears SO_KEEPALIVE.
func (d *Base) DisableKeepalive() error {
	if err := d.io.SetsockoptInt(d.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0); err != nil {
		return fmt.Errorf("unable to disable keepalive: %w", err)
	}
	return nil
}
