// File: descriptor/watch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/sockio"
)

// Watch is the passive filesystem-events source (an inotify-style
// handle). Readable delegates to the reactor's watch-event reader; the
// descriptor itself never touches the byte stream and never delivers
// an unbound event.
type Watch struct {
	Base
}

// NewWatch adopts a watch handle created by the reactor and makes it
// nonblocking.
func NewWatch(fd int, r api.Reactor) (*Watch, error) {
	return newWatch(fd, r, sockio.Default)
}

func newWatch(fd int, r api.Reactor, io sockio.Interface) (*Watch, error) {
	w := &Watch{}
	if err := w.initBase(fd, r, io, w); err != nil {
		return nil, err
	}
	w.callbackUnbind = false
	if err := io.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return w, nil
}

// SelectForRead: always.
func (w *Watch) SelectForRead() bool { return true }

// SelectForWrite: never.
func (w *Watch) SelectForWrite() bool { return false }

// OnReadable delegates to the reactor's watch-event reader.
func (w *Watch) OnReadable() {
	w.reactor.ReadWatchEvents()
}

// OnWritable on a watch descriptor is a programming error in the
// reactor.
func (w *Watch) OnWritable() {
	panic("bad code path: writable event on watch descriptor")
}
