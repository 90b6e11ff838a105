// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the contracts shared between the eventable
// descriptors, the reactor that polls them, and the user code that
// receives their events.
//
// The descriptor side of the contract is Descriptor: a kernel handle
// plus an I/O state machine that the reactor drives through readiness
// callbacks and heartbeats. The reactor side is Reactor: poller
// membership, time sources, heartbeat scheduling and name resolution.
// User code never sees either directly; it receives events through a
// Callback keyed by an opaque Binding handle.
//
// The package targets unix-like platforms; addresses are represented
// as golang.org/x/sys/unix Sockaddr values discriminated by their
// concrete type.
package api
