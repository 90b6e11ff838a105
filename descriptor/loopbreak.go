// File: descriptor/loopbreak.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/sockio"
)

// Loopbreak is the read side of the reactor's self-pipe. Readable
// means another thread scheduled work; the handler hands control to the
// reactor's hook, which drains the pipe and runs the scheduled work. It
// never delivers an unbound event.
type Loopbreak struct {
	Base
}

// NewLoopbreak wraps the read end of the self-pipe.
func NewLoopbreak(fd int, r api.Reactor) (*Loopbreak, error) {
	return newLoopbreak(fd, r, sockio.Default)
}

func newLoopbreak(fd int, r api.Reactor, io sockio.Interface) (*Loopbreak, error) {
	l := &Loopbreak{}
	if err := l.initBase(fd, r, io, l); err != nil {
		return nil, err
	}
	l.callbackUnbind = false
	return l, nil
}

// SelectForRead: always.
func (l *Loopbreak) SelectForRead() bool { return true }

// SelectForWrite: never.
func (l *Loopbreak) SelectForWrite() bool { return false }

// OnReadable delegates to the reactor's drain-and-run hook.
func (l *Loopbreak) OnReadable() {
	l.reactor.ReadLoopbreak()
}

// OnWritable on a loopbreak is a programming error in the reactor.
func (l *Loopbreak) OnWritable() {
	panic("bad code path: writable event on loopbreak")
}
