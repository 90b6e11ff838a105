// File: descriptor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package descriptor implements the eventable descriptors a reactor
// polls: listening acceptors, stream connections (optionally TLS),
// datagram sockets, the loopbreak self-pipe and the filesystem-watch
// source.
//
// Every descriptor runs the common close state machine
// (OPEN -> CLOSE_AFTER_WRITING -> CLOSE_NOW -> CLOSED), delivers events
// through a single callback channel keyed by an opaque binding, and
// exposes pure readiness predicates the reactor derives poller interest
// from. All methods execute on the reactor thread; nothing here blocks
// and nothing here needs a lock.
package descriptor
