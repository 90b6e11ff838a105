// File: descriptor/datagram.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/sockio"
	"github.com/momentics/hioload-reactor/pool"
)

// datagramSendIterations bounds the packets sent per writable tick.
const datagramSendIterations = 10

// Datagram is the message-oriented descriptor. Outbound data is
// page-structured: every page is one packet carrying its own
// destination, and zero-length packets are legal.
type Datagram struct {
	Base

	// returnAddress is the sender of the most recent inbound packet;
	// SendOutboundData without an explicit address replies there.
	returnAddress unix.Sockaddr

	outbound *pool.PageQueue
}

// NewDatagram wraps a datagram handle. Broadcasting is enabled up
// front so sends to a broadcast address do not fail with EACCES.
func NewDatagram(fd int, r api.Reactor) (*Datagram, error) {
	return newDatagram(fd, r, sockio.Default)
}

func newDatagram(fd int, r api.Reactor, io sockio.Interface) (*Datagram, error) {
	d := &Datagram{outbound: pool.NewPageQueue()}
	if err := d.initBase(fd, r, io, d); err != nil {
		return nil, err
	}
	_ = io.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	return d, nil
}

// SelectForRead: a datagram socket always polls readable.
func (d *Datagram) SelectForRead() bool { return true }

// SelectForWrite keys on the page count, not the byte count: a queued
// zero-length packet must still select writable.
func (d *Datagram) SelectForWrite() bool { return d.outbound.Len() > 0 }

// ShouldDelete keys the after-writing branch on the page count for the
// same reason SelectForWrite does; a pending zero-length packet holds
// the descriptor open until it is sent.
func (d *Datagram) ShouldDelete() bool {
	return d.fd == InvalidSocket || d.closeNow ||
		(d.closeAfterWriting && d.outbound.Len() == 0)
}

// OutboundDataSize reports queued unwritten bytes.
func (d *Datagram) OutboundDataSize() int { return d.outbound.Bytes() }

// ReturnAddress reports the sender of the most recent inbound packet.
func (d *Datagram) ReturnAddress() unix.Sockaddr { return d.returnAddress }

// Peername reports the last-seen peer; datagram sockets have no
// connected peer to ask the kernel about.
func (d *Datagram) Peername() (unix.Sockaddr, error) {
	if d.returnAddress == nil {
		return nil, api.ErrBadBinding
	}
	return d.returnAddress, nil
}

// OnReadable drains a bounded batch of packets. Zero-length datagrams
// are legal and dispatched; each packet's sender becomes the return
// address before dispatch so the callback can reply.
func (d *Datagram) OnReadable() {
	d.lastActivity = d.reactor.CurrentLoopTime()

	buf := pool.GetReadBuffer()
	defer pool.PutReadBuffer(buf)

	for i := 0; i < readLoopIterations; i++ {
		n, from, err := d.io.Recvfrom(d.fd, buf[:pool.ReadBufferSize])
		if err != nil || n < 0 {
			break
		}
		buf[n] = 0
		d.returnAddress = from
		d.genericInboundDispatch(buf[:n])
	}
}

// OnWritable sends up to datagramSendIterations packets. A transient
// send failure leaves the remaining packets queued for the next tick;
// a persistent one records the errno and hard-closes.
func (d *Datagram) OnWritable() {
	d.lastActivity = d.reactor.CurrentLoopTime()

	for i := 0; i < datagramSendIterations; i++ {
		p := d.outbound.Peek()
		if p == nil {
			break
		}
		if p.To == nil {
			d.outbound.Pop()
			d.unbindReason = int(unix.EDESTADDRREQ)
			d.hardClose()
			break
		}
		err := d.io.Sendto(d.fd, p.Payload(), p.To)
		if err != nil {
			if sockio.IsTransient(err) {
				break
			}
			d.outbound.Pop()
			d.unbindReason = sockio.Errno(err)
			d.hardClose()
			break
		}
		d.outbound.Pop()
	}

	d.updateEvents()
}

// The datagram readiness predicates do not consult the pause flag: a
// paused datagram still polls readable, and writable while packets are
// queued, and neither loop above checks it.

// SendOutboundData queues one packet for the last-seen peer. The
// packet goes out even when empty; zero-length datagrams carry
// meaning.
func (d *Datagram) SendOutboundData(data []byte) (int, error) {
	if d.IsCloseScheduled() {
		return 0, nil
	}
	d.outbound.Push(pool.NewPage(data, d.returnAddress))
	d.updateEvents()
	return len(data), nil
}

// SendOutboundDatagram queues one packet for an explicit destination,
// resolving it through the reactor. Resolution failure returns -1 with
// the resolver's error.
func (d *Datagram) SendOutboundDatagram(data []byte, address string, port int) (int, error) {
	if d.IsCloseScheduled() {
		return 0, nil
	}
	if address == "" || port == 0 {
		return 0, nil
	}
	to, err := d.reactor.Name2Address(address, port, unix.SOCK_DGRAM)
	if err != nil {
		return -1, err
	}
	d.outbound.Push(pool.NewPage(data, to))
	d.updateEvents()
	return len(data), nil
}

// Heartbeat applies the inactivity rule; datagrams have no connect
// phase.
func (d *Datagram) Heartbeat() {
	if d.inactivityTimeout > 0 {
		skew := d.reactor.TimerQuantum()
		if skew+d.reactor.CurrentLoopTime()-d.lastActivity >= d.inactivityTimeout {
			d.unbindReason = int(unix.ETIMEDOUT)
			d.scheduleClose(false)
		}
	}
}

// Destroy releases queued pages after the shared teardown.
func (d *Datagram) Destroy() {
	d.Base.Destroy()
	d.outbound.Clear()
}
