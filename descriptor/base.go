// File: descriptor/base.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/binding"
	"github.com/momentics/hioload-reactor/internal/sockio"
)

// InvalidSocket is the sentinel for a closed handle. Once the handle
// is invalid no further I/O is attempted and ShouldDelete holds.
const InvalidSocket = -1

// defaultPendingConnectTimeout bounds an unanswered connect, in
// microseconds.
const defaultPendingConnectTimeout = 20_000_000

// eventable is the internal surface descriptors see of each other,
// mainly for proxy wiring. The concrete kinds override the pieces
// that differ; Base supplies the defaults.
type eventable interface {
	api.Descriptor

	base() *Base
	isConnectPending() bool

	OutboundDataSize() int
	SendOutboundData(data []byte) (int, error)
	Pause() (bool, error)
	Resume() (bool, error)
	IsPaused() bool
}

// Base carries the state and behavior every descriptor kind shares:
// lifecycle, the close state machine, callback delivery, heartbeat
// bookkeeping and proxy wiring.
type Base struct {
	fd      int
	io      sockio.Interface
	reactor api.Reactor
	bnd     api.Binding
	cb      api.Callback
	log     zerolog.Logger

	// self points back at the concrete descriptor so shared code can
	// reach overridden behavior and hand the right object to peers.
	self eventable

	callbackUnbind bool
	unbindReason   int

	createdAt    int64 // loop time, microseconds
	lastActivity int64

	closeNow          bool
	closeAfterWriting bool
	closeCounted      bool
	destroyed         bool

	attached  bool
	watchOnly bool
	paused    bool

	inactivityTimeout     int64 // microseconds, 0 disables
	pendingConnectTimeout int64 // microseconds
	nextHeartbeat         int64

	proxyTarget        eventable
	proxiedFrom        eventable
	bytesToProxy       uint64
	proxiedBytes       uint64
	maxOutboundBufSize int
}

// initBase wires the shared state and registers the binding. The
// handle must be valid and the reactor present; descriptors are never
// constructed half-made.
func (d *Base) initBase(fd int, r api.Reactor, io sockio.Interface, self eventable) error {
	if fd == InvalidSocket {
		return fmt.Errorf("bad eventable descriptor: invalid handle")
	}
	if r == nil {
		return fmt.Errorf("bad eventable descriptor: no reactor")
	}
	d.fd = fd
	d.io = io
	d.reactor = r
	d.self = self
	d.cb = nil
	d.callbackUnbind = true
	d.pendingConnectTimeout = defaultPendingConnectTimeout
	d.createdAt = r.CurrentLoopTime()
	d.lastActivity = d.createdAt
	d.log = *r.Logger()
	d.bnd = binding.Bind(self)
	return nil
}

func (d *Base) base() *Base { return d }

// Binding returns the opaque handle user code knows this descriptor by.
func (d *Base) Binding() api.Binding { return d.bnd }

// Fd returns the OS handle, or InvalidSocket once closed.
func (d *Base) Fd() int { return d.fd }

// SetEventCallback installs the callback channel.
func (d *Base) SetEventCallback(cb api.Callback) { d.cb = cb }

// SetUnbindCallback controls delivery of the terminal unbound event.
// Loopbreak and watch descriptors suppress it.
func (d *Base) SetUnbindCallback(enabled bool) { d.callbackUnbind = enabled }

// UnbindReason reports the code the terminal event will carry.
func (d *Base) UnbindReason() int { return d.unbindReason }

func (d *Base) emit(b api.Binding, kind api.EventKind, data []byte, info uint64) {
	if d.cb != nil {
		d.cb(b, kind, data, info)
	}
}

// updateEvents tells the reactor to re-derive poller interest from the
// readiness predicates. Safe to call at any time; a closed descriptor
// is left alone.
func (d *Base) updateEvents() {
	if d.fd == InvalidSocket {
		return
	}
	d.reactor.Modify(d.self)
}

// hardClose closes the handle right now. Intended for terminal errors
// and destruction: deregister from the poller, shut down the write
// side and release the handle. STD handles and attached handles are
// never closed here.
//
// Leaving the poller does not end the lifecycle: the reactor sweep
// must still observe ShouldDelete and run Destroy, so a hard close
// counts toward the pending-closure counter like a scheduled one.
func (d *Base) hardClose() {
	if d.fd == InvalidSocket {
		return
	}
	d.reactor.Deregister(d.self)
	if d.fd > 2 && !d.attached {
		_ = d.io.Shutdown(d.fd, unix.SHUT_WR)
		_ = d.io.Close(d.fd)
	}
	d.fd = InvalidSocket
	if !d.closeCounted && !d.destroyed {
		d.reactor.IncrementCloseScheduled()
		d.closeCounted = true
	}
}

// scheduleClose runs the close state machine. An after-writing close
// lets the outbound queue drain first; a repeated call with
// afterWriting=false upgrades it to an immediate close. The pending
// closure counter is bumped once per descriptor.
func (d *Base) scheduleClose(afterWriting bool) {
	if d.IsCloseScheduled() {
		if !afterWriting {
			d.closeNow = true
		}
		return
	}
	if !d.closeCounted {
		d.reactor.IncrementCloseScheduled()
		d.closeCounted = true
	}
	if afterWriting {
		d.closeAfterWriting = true
	} else {
		d.closeNow = true
	}
}

// ScheduleClose requests closure. With afterWriting the outbound queue
// drains first; without it the queue is abandoned at the next reactor
// visit.
func (d *Base) ScheduleClose(afterWriting bool) {
	d.scheduleClose(afterWriting)
	d.updateEvents()
}

// IsCloseScheduled reports whether any close has been requested.
func (d *Base) IsCloseScheduled() bool {
	return d.closeNow || d.closeAfterWriting
}

// ShouldDelete reports whether the reactor's sweep must destroy this
// descriptor: the handle is gone, an immediate close is pending, or an
// after-writing close has fully drained.
func (d *Base) ShouldDelete() bool {
	return d.fd == InvalidSocket || d.closeNow ||
		(d.closeAfterWriting && d.self.OutboundDataSize() <= 0)
}

// Destroy is the terminal step, run by the reactor once ShouldDelete
// reports true. Idempotent.
func (d *Base) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	if d.nextHeartbeat != 0 {
		d.reactor.ClearHeartbeat(d.nextHeartbeat, d.self)
		d.nextHeartbeat = 0
	}
	if d.callbackUnbind {
		d.emit(d.bnd, api.ConnectionUnbound, nil, uint64(d.unbindReason))
	}
	if d.proxiedFrom != nil {
		d.emit(d.proxiedFrom.base().bnd, api.ProxyTargetUnbound, nil, 0)
		d.proxiedFrom.base().StopProxy()
	}
	if d.closeCounted {
		d.reactor.DecrementCloseScheduled()
		d.closeCounted = false
	}
	d.StopProxy()
	d.hardClose()
	binding.Unbind(d.bnd)
}

// Default kind hooks; the stream and datagram kinds override these.

func (d *Base) isConnectPending() bool { return false }

// OutboundDataSize reports queued unwritten bytes; kinds without an
// outbound queue report zero.
func (d *Base) OutboundDataSize() int { return 0 }

// SendOutboundData rejects kinds that own no byte stream.
func (d *Base) SendOutboundData(data []byte) (int, error) {
	return 0, api.ErrUnsupported
}

// Pause suppresses readiness interest entirely. Returns whether the
// state changed.
func (d *Base) Pause() (bool, error) {
	was := d.paused
	d.paused = true
	d.updateEvents()
	return !was, nil
}

// Resume re-enables readiness interest. Returns whether the state
// changed.
func (d *Base) Resume() (bool, error) {
	was := d.paused
	d.paused = false
	d.updateEvents()
	return was, nil
}

// IsPaused reports the pause flag.
func (d *Base) IsPaused() bool { return d.paused }

// OnError handles a collapsed HUP+ERR poller condition: terminal for
// every kind that does not override it.
func (d *Base) OnError() {
	d.scheduleClose(false)
}

// Heartbeat is a no-op by default; stream and datagram kinds override
// it with their timeout rules.
func (d *Base) Heartbeat() {}

// NextHeartbeat clears any scheduled heartbeat, then computes the next
// absolute deadline: the inactivity timeout, tightened by the pending
// connect timeout while a connect is outstanding. Zero when no timeout
// applies or the descriptor is already deletable.
func (d *Base) NextHeartbeat() int64 {
	if d.nextHeartbeat != 0 {
		d.reactor.ClearHeartbeat(d.nextHeartbeat, d.self)
	}
	d.nextHeartbeat = 0
	if !d.self.ShouldDelete() {
		t := d.inactivityTimeout
		if d.self.isConnectPending() {
			if t == 0 || d.pendingConnectTimeout < t {
				t = d.pendingConnectTimeout
			}
		}
		if t == 0 {
			return 0
		}
		d.nextHeartbeat = t + d.reactor.RealTime()
	}
	return d.nextHeartbeat
}

// InactivityTimeout reports the timeout in milliseconds.
func (d *Base) InactivityTimeout() int64 {
	return d.inactivityTimeout / 1000
}

// SetInactivityTimeout sets the timeout in milliseconds and re-queues
// the heartbeat. Zero disables.
func (d *Base) SetInactivityTimeout(ms int64) {
	d.inactivityTimeout = ms * 1000
	d.reactor.QueueHeartbeat(d.self)
}

// PendingConnectTimeout reports the connect timeout in milliseconds.
func (d *Base) PendingConnectTimeout() int64 {
	return d.pendingConnectTimeout / 1000
}

// SetPendingConnectTimeout sets the connect timeout in milliseconds
// and re-queues the heartbeat. Non-positive values are ignored.
func (d *Base) SetPendingConnectTimeout(ms int64) bool {
	if ms <= 0 {
		return false
	}
	d.pendingConnectTimeout = ms * 1000
	d.reactor.QueueHeartbeat(d.self)
	return true
}

// SetAttached marks the handle as adopted from outside; attached
// handles are never closed by the core.
func (d *Base) SetAttached(attached bool) { d.attached = attached }

// Peername returns the remote address of the handle.
func (d *Base) Peername() (unix.Sockaddr, error) {
	sa, err := d.io.Getpeername(d.fd)
	if err != nil {
		return nil, fmt.Errorf("unable to get peer name: %w", err)
	}
	return sa, nil
}

// Sockname returns the local address of the handle.
func (d *Base) Sockname() (unix.Sockaddr, error) {
	sa, err := d.io.Getsockname(d.fd)
	if err != nil {
		return nil, fmt.Errorf("unable to get sock name: %w", err)
	}
	return sa, nil
}
