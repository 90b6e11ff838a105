// File: api/descriptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Descriptor is the capability set the reactor drives. All methods
// execute on the reactor thread; none of them block.
//
// The reactor polls SelectForRead/SelectForWrite, dispatches OnReadable,
// OnWritable and OnError as readiness arrives, ticks Heartbeat on its
// timer quantum, and destroys the object with Destroy once ShouldDelete
// reports true.
type Descriptor interface {
	// Binding returns the opaque handle user code knows this
	// descriptor by.
	Binding() Binding

	// SetEventCallback installs the callback channel. The reactor
	// installs its trampoline here when the descriptor is added.
	SetEventCallback(cb Callback)

	// OnReadable and OnWritable handle poller readiness. OnError
	// handles a collapsed HUP+ERR condition.
	OnReadable()
	OnWritable()
	OnError()

	// Heartbeat enforces timeouts on the reactor's coarse tick.
	Heartbeat()

	// NextHeartbeat clears any scheduled heartbeat and returns the
	// absolute real-time (microseconds) of the next one, or 0 when no
	// timeout applies.
	NextHeartbeat() int64

	// SelectForRead and SelectForWrite are pure predicates over the
	// descriptor's visible state; the reactor derives poller interest
	// from them.
	SelectForRead() bool
	SelectForWrite() bool

	// ShouldDelete reports whether the reactor's sweep must destroy
	// this descriptor. Once true it stays true.
	ShouldDelete() bool

	// Destroy is terminal: it delivers the unbind event (unless
	// suppressed), tears down proxy links, closes the handle and
	// unregisters the binding. Idempotent.
	Destroy()
}
