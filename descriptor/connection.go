// File: descriptor/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/sockio"
	"github.com/momentics/hioload-reactor/pool"
)

// readLoopIterations bounds the reads taken on one readiness event so
// a chatty peer cannot starve the rest of the reactor.
const readLoopIterations = 10

// writevMaxPages bounds the scatter-gather segments assembled for one
// write.
const writevMaxPages = 16

// Connection is the stream descriptor: connect, read, write,
// pause/resume, watch-only notification and the optional TLS pump.
type Connection struct {
	Base

	connectPending bool
	notifyReadable bool
	notifyWritable bool
	serverMode     bool

	// One-shot guards against spinning on a closed handle; see
	// OnReadable and writeOutboundData.
	readAttemptedAfterClose  bool
	writeAttemptedAfterClose bool

	outbound *pool.PageQueue

	tls tlsState
}

// NewConnection wraps an existing stream handle. The handle must be
// nonblocking; accepted and attached sockets are configured by their
// producers.
func NewConnection(fd int, r api.Reactor) (*Connection, error) {
	return newConnection(fd, r, sockio.Default)
}

func newConnection(fd int, r api.Reactor, io sockio.Interface) (*Connection, error) {
	c := &Connection{outbound: pool.NewPageQueue()}
	c.tls.factory = defaultTlsFactory
	if err := c.initBase(fd, r, io, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetServerMode marks the connection as accepted rather than dialed;
// a TLS bridge started on it runs the server side of the handshake.
func (c *Connection) SetServerMode() { c.serverMode = true }

// IsServerMode reports whether the connection was accepted.
func (c *Connection) IsServerMode() bool { return c.serverMode }

// SetConnectPending marks an outbound connect in flight (or resolved),
// queues the connect-timeout heartbeat and refreshes readiness.
func (c *Connection) SetConnectPending(pending bool) {
	c.connectPending = pending
	c.reactor.QueueHeartbeat(c)
	c.updateEvents()
}

func (c *Connection) isConnectPending() bool { return c.connectPending }

// SetWatchOnly turns the connection into a readiness reporter that
// neither reads nor writes data itself.
func (c *Connection) SetWatchOnly(watching bool) {
	c.watchOnly = watching
	c.updateEvents()
}

// IsWatchOnly reports the watch-only flag.
func (c *Connection) IsWatchOnly() bool { return c.watchOnly }

// ScheduleClose requests closure. Watch-only connections are owned by
// their watcher and cannot be closed through the core.
func (c *Connection) ScheduleClose(afterWriting bool) error {
	if c.watchOnly {
		return api.ErrWatchOnly
	}
	c.Base.ScheduleClose(afterWriting)
	return nil
}

// SetNotifyReadable adjusts watch-only readable interest.
func (c *Connection) SetNotifyReadable(enabled bool) error {
	if !c.watchOnly {
		return api.ErrNotWatchOnly
	}
	c.notifyReadable = enabled
	c.updateEvents()
	return nil
}

// SetNotifyWritable adjusts watch-only writable interest.
func (c *Connection) SetNotifyWritable(enabled bool) error {
	if !c.watchOnly {
		return api.ErrNotWatchOnly
	}
	c.notifyWritable = enabled
	c.updateEvents()
	return nil
}

// NotifyReadable reports watch-only readable interest.
func (c *Connection) NotifyReadable() bool { return c.notifyReadable }

// NotifyWritable reports watch-only writable interest.
func (c *Connection) NotifyWritable() bool { return c.notifyWritable }

// Pause suppresses readiness interest; fails on watch-only
// connections, which express interest through the notify toggles.
// Returns whether the state changed.
func (c *Connection) Pause() (bool, error) {
	if c.watchOnly {
		return false, api.ErrWatchOnly
	}
	return c.Base.Pause()
}

// Resume re-enables readiness interest. Returns whether the state
// changed.
func (c *Connection) Resume() (bool, error) {
	if c.watchOnly {
		return false, api.ErrWatchOnly
	}
	return c.Base.Resume()
}

// OutboundDataSize reports queued unwritten bytes.
func (c *Connection) OutboundDataSize() int { return c.outbound.Bytes() }

// SendOutboundData queues bytes for the peer. Over TLS the input is
// fed through the bridge and the byte count accepted is the plaintext
// count; otherwise bytes are paged onto the raw outbound queue.
func (c *Connection) SendOutboundData(data []byte) (int, error) {
	if c.watchOnly {
		return 0, api.ErrWatchOnly
	}
	if c.proxiedFrom != nil && c.maxOutboundBufSize > 0 &&
		c.outbound.Bytes()+len(data) > c.maxOutboundBufSize {
		_, _ = c.proxiedFrom.Pause()
	}
	if c.tls.box != nil {
		return c.sendTlsOutboundData(data)
	}
	return c.sendRawOutboundData(data), nil
}

// sendRawOutboundData pages bytes onto the outbound queue. A scheduled
// close refuses new bytes, and zero-length payloads are dropped; they
// carry no meaning on a stream.
func (c *Connection) sendRawOutboundData(data []byte) int {
	if c.IsCloseScheduled() {
		return 0
	}
	if len(data) == 0 {
		return 0
	}
	c.outbound.Push(pool.NewPage(data, nil))
	c.updateEvents()
	return len(data)
}

// SelectForRead: a connection always polls readable, unless paused,
// awaiting a connect disposition (a connecting socket may select
// readable before the connect resolves, violating expectations), or
// watch-only without readable interest.
func (c *Connection) SelectForRead() bool {
	switch {
	case c.paused:
		return false
	case c.connectPending:
		return false
	case c.watchOnly:
		return c.notifyReadable
	default:
		return true
	}
}

// SelectForWrite: a pending connect always polls writable (that is how
// its disposition is learned); otherwise only when there are bytes to
// drain, or the watcher asked for writable notifications.
func (c *Connection) SelectForWrite() bool {
	switch {
	case c.paused:
		return false
	case c.connectPending:
		return true
	case c.watchOnly:
		return c.notifyWritable
	default:
		return c.outbound.Bytes() > 0
	}
}

// OnReadable drains the socket: bounded nonblocking reads, each
// dispatched with a guard NUL appended past the payload. EOF and
// spurious wakeups share a single graceful-close decision point.
func (c *Connection) OnReadable() {
	if c.fd == InvalidSocket {
		// At most one readiness visit may arrive after a close in the
		// same loop pass; more than that means the reactor is broken.
		if c.readAttemptedAfterClose {
			panic("read attempted twice on closed connection")
		}
		c.readAttemptedAfterClose = true
		return
	}

	if c.watchOnly {
		if c.notifyReadable {
			c.emit(c.bnd, api.ConnectionNotifyReadable, nil, 0)
		}
		return
	}

	c.lastActivity = c.reactor.CurrentLoopTime()

	buf := pool.GetReadBuffer()
	defer pool.PutReadBuffer(buf)

	total := 0
	sawEOF := false
	for i := 0; i < readLoopIterations; i++ {
		// One byte of the buffer is reserved so a guard NUL can sit
		// past the payload handed to user code. Consumers may depend
		// on that terminator.
		n, err := c.io.Read(c.fd, buf[:pool.ReadBufferSize])
		if n > 0 {
			total += n
			buf[n] = 0
			c.dispatchInboundData(buf[:n])
			if c.paused {
				break
			}
			continue
		}
		if n == 0 && err == nil {
			sawEOF = true
			break
		}
		if sockio.IsTransient(err) {
			break
		}
		c.unbindReason = sockio.Errno(err)
		c.hardClose()
		break
	}

	// Reading nothing on a socket that selected readable means the
	// peer closed gracefully.
	if (sawEOF || total == 0) && c.fd != InvalidSocket {
		c.scheduleClose(false)
	}
}

// OnWritable resolves a pending connect, fires the watch-only
// notification, or drains the outbound queue.
func (c *Connection) OnWritable() {
	if c.connectPending {
		soerr, err := c.io.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err == nil && soerr == 0 {
			c.emit(c.bnd, api.ConnectionCompleted, nil, 0)
			c.SetConnectPending(false)
			return
		}
		if err == nil {
			c.unbindReason = soerr
		}
		c.scheduleClose(false)
		return
	}

	if c.notifyWritable {
		c.emit(c.bnd, api.ConnectionNotifyWritable, nil, 0)
		c.updateEvents()
		return
	}

	if c.watchOnly {
		return
	}

	c.writeOutboundData()
}

// writeOutboundData assembles up to writevMaxPages scatter-gather
// segments from the head of the queue and issues one nonblocking
// write. The kernel may have spent its buffers between readiness and
// now, so writing nothing is not an error.
func (c *Connection) writeOutboundData() {
	if c.fd == InvalidSocket {
		if c.writeAttemptedAfterClose {
			panic("write attempted twice on closed connection")
		}
		c.writeAttemptedAfterClose = true
		return
	}

	c.lastActivity = c.reactor.CurrentLoopTime()

	iovcnt := c.outbound.Len()
	if iovcnt == 0 {
		return
	}
	if iovcnt > writevMaxPages {
		iovcnt = writevMaxPages
	}
	iovs := make([][]byte, iovcnt)
	for i := 0; i < iovcnt; i++ {
		iovs[i] = c.outbound.Get(i).Payload()
	}

	n, err := c.io.Writev(c.fd, iovs)
	if n > 0 {
		c.outbound.Consume(n)
		if c.proxiedFrom != nil && c.maxOutboundBufSize > 0 &&
			c.outbound.Bytes() < c.maxOutboundBufSize && c.proxiedFrom.IsPaused() {
			_, _ = c.proxiedFrom.Resume()
		}
	}
	c.updateEvents()

	if err != nil && !sockio.IsTransient(err) {
		c.unbindReason = sockio.Errno(err)
		c.hardClose()
	}
}

// OnError handles a collapsed HUP+ERR condition. Some pollers fold
// readable and writable into error for watch-only handles, so the
// notifications are synthesized here; everything else closes.
func (c *Connection) OnError() {
	if c.watchOnly {
		if c.fd == InvalidSocket {
			return
		}
		if c.notifyReadable {
			c.OnReadable()
		}
		if c.notifyWritable {
			c.OnWritable()
		}
		return
	}
	c.scheduleClose(false)
}

// ReportErrorStatus probes SO_ERROR: 0 when clear, the errno when the
// socket holds one, -1 when the handle is closed or the probe failed.
func (c *Connection) ReportErrorStatus() int {
	if c.fd == InvalidSocket {
		return -1
	}
	soerr, err := c.io.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return -1
	}
	return soerr
}

// Heartbeat enforces the connect and inactivity timeouts. The timer
// quantum absorbs the skew TLS processing can put between activity and
// its timestamp.
func (c *Connection) Heartbeat() {
	if c.connectPending {
		if c.reactor.CurrentLoopTime()-c.createdAt >= c.pendingConnectTimeout {
			c.unbindReason = int(unix.ETIMEDOUT)
			c.scheduleClose(false)
		}
		return
	}
	if c.inactivityTimeout > 0 {
		skew := c.reactor.TimerQuantum()
		if skew+c.reactor.CurrentLoopTime()-c.lastActivity >= c.inactivityTimeout {
			c.unbindReason = int(unix.ETIMEDOUT)
			c.scheduleClose(false)
		}
	}
}

// Destroy releases queued pages after the shared teardown.
func (c *Connection) Destroy() {
	c.Base.Destroy()
	c.outbound.Clear()
	if c.tls.box != nil {
		c.tls.box.Shutdown()
		c.tls.box = nil
	}
}
