// File: api/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Binding is an opaque handle identifying a descriptor to user code
// across the callback boundary. Bindings are resolved through the
// binding registry; a stale Binding resolves to nothing rather than to
// a recycled object.
type Binding uint64

// EventKind discriminates the events a descriptor can emit.
type EventKind int

const (
	// ConnectionRead carries inbound bytes. The data slice is valid
	// only for the duration of the callback, and its backing array
	// holds a guard NUL one byte past the reported length.
	ConnectionRead EventKind = 101
	// ConnectionUnbound is the terminal event. Info carries the unbind
	// reason: 0 for a graceful close, an OS errno for socket errors,
	// ETIMEDOUT for timeouts, EPROTO for a fatal TLS failure.
	ConnectionUnbound EventKind = 102
	// ConnectionAccepted is emitted by an acceptor; Info carries the
	// Binding of the newly accepted connection.
	ConnectionAccepted EventKind = 103
	// ConnectionCompleted signals that an outbound connect finished.
	ConnectionCompleted EventKind = 104
	// ConnectionNotifyReadable and ConnectionNotifyWritable are the
	// watch-only readiness notifications.
	ConnectionNotifyReadable EventKind = 106
	ConnectionNotifyWritable EventKind = 107
	// SslHandshakeCompleted fires exactly once when the TLS handshake
	// finishes.
	SslHandshakeCompleted EventKind = 108
	// SslVerify carries the peer certificate (DER) for user-mediated
	// verification; call AcceptSslPeer during the callback to accept.
	SslVerify EventKind = 109
	// ProxyTargetUnbound tells a proxying source that its target died.
	ProxyTargetUnbound EventKind = 110
	// ProxyCompleted signals that a length-bounded proxy forwarded its
	// final byte.
	ProxyCompleted EventKind = 111
)

// Callback is the single channel through which descriptors deliver
// events. Data may be nil; Info carries a length-or-code depending on
// the event kind (see the EventKind constants).
type Callback func(binding Binding, kind EventKind, data []byte, info uint64)
