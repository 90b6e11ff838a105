// File: descriptor/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/binding"
	"github.com/momentics/hioload-reactor/internal/sockio"
)

// Acceptor is the listening descriptor. It polls readable only; its
// readiness handler runs a bounded nonblocking accept loop that
// produces server-mode connections.
type Acceptor struct {
	Base
}

// NewAcceptor wraps a listening handle. The handle must already be
// bound, listening and nonblocking.
func NewAcceptor(fd int, r api.Reactor) (*Acceptor, error) {
	return newAcceptor(fd, r, sockio.Default)
}

func newAcceptor(fd int, r api.Reactor, io sockio.Interface) (*Acceptor, error) {
	a := &Acceptor{}
	if err := a.initBase(fd, r, io, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SelectForRead: an acceptor always polls readable.
func (a *Acceptor) SelectForRead() bool { return true }

// SelectForWrite: never.
func (a *Acceptor) SelectForWrite() bool { return false }

// OnReadable accepts a bounded batch of queued connections. The bound
// keeps an accept flood from starving descriptors that have data to
// move, while still draining more than one per tick so the kernel
// queue does not back up.
//
// A peer can reset between readiness and accept, so a failed accept
// just ends the batch.
func (a *Acceptor) OnReadable() {
	count := a.reactor.SimultaneousAcceptCount()
	for i := 0; i < count; i++ {
		sd, _, err := a.io.Accept(a.fd)
		if err != nil {
			break
		}

		// The atomic CLOEXEC accept may have been unavailable; apply
		// both flags explicitly. A socket that cannot be configured is
		// abandoned, not delivered.
		if err := a.io.SetCloexec(sd); err != nil {
			a.dropAccepted(sd, err)
			continue
		}
		if err := a.io.SetNonblock(sd, true); err != nil {
			a.dropAccepted(sd, err)
			continue
		}

		// Disable Nagle on accepted streams.
		_ = a.io.SetsockoptInt(sd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		cd, err := newConnection(sd, a.reactor, a.io)
		if err != nil {
			a.dropAccepted(sd, err)
			continue
		}
		cd.SetServerMode()
		cd.SetEventCallback(a.cb)
		a.emit(a.bnd, api.ConnectionAccepted, nil, uint64(cd.Binding()))
		a.reactor.Add(cd)
	}
}

func (a *Acceptor) dropAccepted(sd int, err error) {
	a.log.Warn().Err(err).Int("fd", sd).Msg("dropping accepted socket")
	_ = a.io.Shutdown(sd, unix.SHUT_WR)
	_ = a.io.Close(sd)
}

// OnWritable on an acceptor is a programming error in the reactor.
func (a *Acceptor) OnWritable() {
	panic("bad code path: writable event on acceptor")
}

// Heartbeat: acceptors carry no timeouts.
func (a *Acceptor) Heartbeat() {}

// StopAcceptor resolves the binding and schedules the acceptor's
// close. A stale or wrong-kind binding fails with api.ErrBadBinding.
func StopAcceptor(b api.Binding) error {
	a, ok := binding.Get(b).(*Acceptor)
	if !ok {
		return api.ErrBadBinding
	}
	a.ScheduleClose(false)
	return nil
}
