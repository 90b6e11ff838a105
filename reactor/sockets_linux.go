// File: reactor/sockets_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/descriptor"
)

func saFamily(sa unix.Sockaddr) int {
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// ListenTCP opens a nonblocking listener and registers an acceptor
// for it.
func (r *Reactor) ListenTCP(host string, port int) (*descriptor.Acceptor, error) {
	sa, err := resolveAddress(host, port, unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(saFamily(sa), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}
	a, err := descriptor.NewAcceptor(fd, r)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	r.Add(a)
	return a, nil
}

// ConnectTCP starts a nonblocking connect and registers the resulting
// connection in the pending state; the connect disposition arrives as
// a completed or unbound event.
func (r *Reactor) ConnectTCP(host string, port int) (*descriptor.Connection, error) {
	sa, err := resolveAddress(host, port, unix.SOCK_STREAM)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(saFamily(sa), unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect: %w", err)
	}
	c, err := descriptor.NewConnection(fd, r)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	c.SetConnectPending(true)
	r.Add(c)
	return c, nil
}

// OpenDatagram opens a nonblocking datagram socket bound to host:port
// and registers it.
func (r *Reactor) OpenDatagram(host string, port int) (*descriptor.Datagram, error) {
	sa, err := resolveAddress(host, port, unix.SOCK_DGRAM)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(saFamily(sa), unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	d, err := descriptor.NewDatagram(fd, r)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	r.Add(d)
	return d, nil
}
