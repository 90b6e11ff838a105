// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Config tunes the reference reactor.
type Config struct {
	// AcceptBatch bounds accepts per readable tick on a listener.
	// Defaults to 10.
	AcceptBatch int
	// TimerQuantumMs is the heartbeat granularity in milliseconds.
	// Defaults to 90, the poll timeout as well.
	TimerQuantumMs int
	// Logger is the ambient logger; defaults to a no-op logger.
	Logger zerolog.Logger
}

func (c *Config) fill() {
	if c.AcceptBatch <= 0 {
		c.AcceptBatch = 10
	}
	if c.TimerQuantumMs <= 0 {
		c.TimerQuantumMs = 90
	}
}

// resolveAddress turns host:port into a unix.Sockaddr for the given
// socket type. Numeric addresses resolve without touching a resolver.
func resolveAddress(host string, port int, socktype int) (unix.Sockaddr, error) {
	network := "tcp"
	if socktype == unix.SOCK_DGRAM {
		network = "udp"
	}
	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s (%s): %w", host, network, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			sa := &unix.SockaddrInet4{Port: port}
			copy(sa.Addr[:], v4)
			return sa, nil
		}
	}
	for _, ip := range ips {
		if v16 := ip.To16(); v16 != nil {
			sa := &unix.SockaddrInet6{Port: port}
			copy(sa.Addr[:], v16)
			return sa, nil
		}
	}
	return nil, fmt.Errorf("resolve %s: no usable address", host)
}
