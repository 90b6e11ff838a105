// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Reactor is the collaborator that owns the poller, the clock and the
// heartbeat wheel. Descriptors hold a non-owning reference to it; the
// reactor outlives every descriptor it polls.
//
// The whole contract is single-threaded: every method is called from
// the reactor thread only.
type Reactor interface {
	// Add, Modify and Deregister manage poller membership. Modify
	// re-derives interest from the descriptor's readiness predicates.
	Add(d Descriptor)
	Modify(d Descriptor)
	Deregister(d Descriptor)

	// QueueHeartbeat schedules d at its NextHeartbeat time.
	// ClearHeartbeat removes a previously queued entry.
	QueueHeartbeat(d Descriptor)
	ClearHeartbeat(at int64, d Descriptor)

	// CurrentLoopTime is the cached coarse clock for this loop pass,
	// RealTime a fresh reading, both in microseconds. TimerQuantum is
	// the heartbeat granularity in microseconds.
	CurrentLoopTime() int64
	RealTime() int64
	TimerQuantum() int64

	// Name2Address resolves host:port for the given socket type
	// (unix.SOCK_STREAM or unix.SOCK_DGRAM).
	Name2Address(host string, port int, socktype int) (unix.Sockaddr, error)

	// SimultaneousAcceptCount bounds the acceptor's per-tick loop.
	SimultaneousAcceptCount() int

	// IncrementCloseScheduled and DecrementCloseScheduled maintain the
	// counter the reactor uses to bound close-sweep work per tick.
	IncrementCloseScheduled()
	DecrementCloseScheduled()

	// ReadLoopbreak drains the self-pipe and runs externally scheduled
	// work. ReadWatchEvents drains the filesystem-watch descriptor.
	ReadLoopbreak()
	ReadWatchEvents()

	// Logger is the reactor's ambient logger; descriptors use it for
	// off-hot-path diagnostics.
	Logger() *zerolog.Logger
}
