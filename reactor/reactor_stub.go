// File: reactor/reactor_stub.go
//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "errors"

// ErrUnsupportedPlatform reports that the reference reactor has no
// poller backend for this OS. The descriptor core itself only needs an
// api.Reactor implementation, which embedders can supply.
var ErrUnsupportedPlatform = errors.New("reference reactor requires linux epoll")

// New fails on platforms without an epoll backend.
func New(cfg Config) (*Reactor, error) {
	return nil, ErrUnsupportedPlatform
}

// Reactor is unavailable on this platform.
type Reactor struct{}
