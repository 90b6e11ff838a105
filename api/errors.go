// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "errors"

// API-misuse errors. These report a caller mistake; the descriptor's
// state is unchanged when one is returned.
var (
	// ErrWatchOnly rejects data or pause/resume operations on a
	// watch-only descriptor.
	ErrWatchOnly = errors.New("operation not valid on a watch-only descriptor")
	// ErrNotWatchOnly rejects notify-readable/writable toggles on a
	// descriptor that owns its byte stream.
	ErrNotWatchOnly = errors.New("notify readable/writable requires a watch-only descriptor")
	// ErrProxyBusy rejects binding a second source to a proxy target.
	ErrProxyBusy = errors.New("proxy target already has a source")
	// ErrBadBinding reports a binding that resolves to nothing, or to
	// a descriptor of the wrong kind.
	ErrBadBinding = errors.New("binding does not resolve to a usable descriptor")
	// ErrTLSActive rejects TLS parameter changes after the bridge has
	// been created.
	ErrTLSActive = errors.New("TLS already running on connection")
	// ErrTLSNotActive rejects TLS introspection without a bridge.
	ErrTLSNotActive = errors.New("TLS not running on connection")
	// ErrClosed reports an operation on a descriptor whose close has
	// already been scheduled or performed.
	ErrClosed = errors.New("descriptor is closed or close-scheduled")
	// ErrUnsupported reports an operation a descriptor kind does not
	// implement, such as sending bytes through an acceptor.
	ErrUnsupported = errors.New("operation not supported by this descriptor kind")
)
