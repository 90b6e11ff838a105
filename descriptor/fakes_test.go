// File: descriptor/fakes_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"bytes"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// fakeReactor records the collaborator calls descriptors make.
type fakeReactor struct {
	now     int64
	quantum int64

	adds       int
	modifies   int
	deregs     int
	added      []api.Descriptor
	hb         map[api.Descriptor]int64
	closeCount int

	acceptBatch int
	resolved    unix.Sockaddr
	resolveErr  error

	loopbreakReads int
	watchReads     int

	log zerolog.Logger
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		now:         1_000_000,
		quantum:     90_000,
		acceptBatch: 10,
		hb:          make(map[api.Descriptor]int64),
		log:         zerolog.Nop(),
	}
}

func (r *fakeReactor) Add(d api.Descriptor) {
	r.adds++
	r.added = append(r.added, d)
}
func (r *fakeReactor) Modify(d api.Descriptor)     { r.modifies++ }
func (r *fakeReactor) Deregister(d api.Descriptor) { r.deregs++ }

func (r *fakeReactor) QueueHeartbeat(d api.Descriptor) {
	if at := d.NextHeartbeat(); at != 0 {
		r.hb[d] = at
	}
}

func (r *fakeReactor) ClearHeartbeat(at int64, d api.Descriptor) {
	if r.hb[d] == at {
		delete(r.hb, d)
	}
}

func (r *fakeReactor) CurrentLoopTime() int64 { return r.now }
func (r *fakeReactor) RealTime() int64        { return r.now }
func (r *fakeReactor) TimerQuantum() int64    { return r.quantum }

func (r *fakeReactor) Name2Address(host string, port int, socktype int) (unix.Sockaddr, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	if r.resolved != nil {
		return r.resolved, nil
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
	return sa, nil
}

func (r *fakeReactor) SimultaneousAcceptCount() int { return r.acceptBatch }
func (r *fakeReactor) IncrementCloseScheduled()     { r.closeCount++ }
func (r *fakeReactor) DecrementCloseScheduled()     { r.closeCount-- }
func (r *fakeReactor) ReadLoopbreak()               { r.loopbreakReads++ }
func (r *fakeReactor) ReadWatchEvents()             { r.watchReads++ }
func (r *fakeReactor) Logger() *zerolog.Logger      { return &r.log }

// event is one recorded callback delivery.
type event struct {
	binding api.Binding
	kind    api.EventKind
	data    []byte
	info    uint64
	// tail is the byte one past the reported data length, captured at
	// delivery time to verify the guard NUL contract.
	tail byte
	hasT bool
}

// recorder collects callback deliveries, copying data out since the
// buffers are only valid during the callback.
type recorder struct {
	events []event
}

func (rec *recorder) callback() api.Callback {
	return func(b api.Binding, kind api.EventKind, data []byte, info uint64) {
		ev := event{binding: b, kind: kind, info: info}
		if data != nil {
			ev.data = append([]byte(nil), data...)
			if cap(data) > len(data) {
				ev.tail = data[:len(data)+1][len(data)]
				ev.hasT = true
			}
		}
		rec.events = append(rec.events, ev)
	}
}

func (rec *recorder) kinds() []api.EventKind {
	out := make([]api.EventKind, len(rec.events))
	for i, ev := range rec.events {
		out[i] = ev.kind
	}
	return out
}

func (rec *recorder) count(kind api.EventKind) int {
	n := 0
	for _, ev := range rec.events {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

// readEvent scripts one Read result.
type readEvent struct {
	data []byte
	eof  bool
	err  error
}

// recvEvent scripts one Recvfrom result.
type recvEvent struct {
	data []byte
	from unix.Sockaddr
	err  error
}

// acceptEvent scripts one Accept result.
type acceptEvent struct {
	fd  int
	err error
}

// sentPacket records one Sendto call.
type sentPacket struct {
	data []byte
	to   unix.Sockaddr
}

// fakeSock scripts the kernel surface.
type fakeSock struct {
	reads     []readEvent
	readCalls int

	// writeLimit caps bytes consumed per Write/Writev call; 0 means
	// unlimited. writeErrs are consumed first, one per call.
	writeLimit int
	writeErrs  []error
	written    bytes.Buffer
	writeCalls int

	recvs    []recvEvent
	sendErrs []error
	sent     []sentPacket

	accepts []acceptEvent

	soError    int
	soErrorErr error

	setopts     map[[3]int]int
	setoptErr   map[[2]int]error
	cloexecErr  map[int]error
	nonblockErr map[int]error

	shutdowns []int
	closed    []int

	nonblocked []int
	cloexeced  []int

	peer  unix.Sockaddr
	local unix.Sockaddr
}

func newFakeSock() *fakeSock {
	return &fakeSock{
		setopts:     make(map[[3]int]int),
		setoptErr:   make(map[[2]int]error),
		cloexecErr:  make(map[int]error),
		nonblockErr: make(map[int]error),
	}
}

func (s *fakeSock) Read(fd int, p []byte) (int, error) {
	s.readCalls++
	if len(s.reads) == 0 {
		return -1, unix.EAGAIN
	}
	ev := s.reads[0]
	s.reads = s.reads[1:]
	if ev.err != nil {
		return -1, ev.err
	}
	if ev.eof {
		return 0, nil
	}
	n := copy(p, ev.data)
	return n, nil
}

func (s *fakeSock) consume(total int) int {
	if s.writeLimit > 0 && total > s.writeLimit {
		return s.writeLimit
	}
	return total
}

func (s *fakeSock) Write(fd int, p []byte) (int, error) {
	return s.Writev(fd, [][]byte{p})
}

func (s *fakeSock) Writev(fd int, iovs [][]byte) (int, error) {
	s.writeCalls++
	if len(s.writeErrs) > 0 {
		err := s.writeErrs[0]
		s.writeErrs = s.writeErrs[1:]
		if err != nil {
			return -1, err
		}
	}
	total := 0
	for _, iov := range iovs {
		total += len(iov)
	}
	n := s.consume(total)
	left := n
	for _, iov := range iovs {
		if left <= 0 {
			break
		}
		take := len(iov)
		if take > left {
			take = left
		}
		s.written.Write(iov[:take])
		left -= take
	}
	return n, nil
}

func (s *fakeSock) Recvfrom(fd int, p []byte) (int, unix.Sockaddr, error) {
	if len(s.recvs) == 0 {
		return -1, nil, unix.EAGAIN
	}
	ev := s.recvs[0]
	s.recvs = s.recvs[1:]
	if ev.err != nil {
		return -1, nil, ev.err
	}
	n := copy(p, ev.data)
	return n, ev.from, nil
}

func (s *fakeSock) Sendto(fd int, p []byte, to unix.Sockaddr) error {
	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sentPacket{data: append([]byte(nil), p...), to: to})
	return nil
}

func (s *fakeSock) Accept(fd int) (int, unix.Sockaddr, error) {
	if len(s.accepts) == 0 {
		return -1, nil, unix.EAGAIN
	}
	ev := s.accepts[0]
	s.accepts = s.accepts[1:]
	if ev.err != nil {
		return -1, nil, ev.err
	}
	return ev.fd, &unix.SockaddrInet4{Port: 4242, Addr: [4]byte{127, 0, 0, 1}}, nil
}

func (s *fakeSock) GetsockoptInt(fd, level, opt int) (int, error) {
	if level == unix.SOL_SOCKET && opt == unix.SO_ERROR {
		return s.soError, s.soErrorErr
	}
	return s.setopts[[3]int{fd, level, opt}], nil
}

func (s *fakeSock) SetsockoptInt(fd, level, opt, value int) error {
	if err := s.setoptErr[[2]int{level, opt}]; err != nil {
		return err
	}
	s.setopts[[3]int{fd, level, opt}] = value
	return nil
}

func (s *fakeSock) Shutdown(fd, how int) error {
	s.shutdowns = append(s.shutdowns, fd)
	return nil
}

func (s *fakeSock) Close(fd int) error {
	s.closed = append(s.closed, fd)
	return nil
}

func (s *fakeSock) SetNonblock(fd int, nb bool) error {
	if err := s.nonblockErr[fd]; err != nil {
		return err
	}
	s.nonblocked = append(s.nonblocked, fd)
	return nil
}

func (s *fakeSock) SetCloexec(fd int) error {
	if err := s.cloexecErr[fd]; err != nil {
		return err
	}
	s.cloexeced = append(s.cloexeced, fd)
	return nil
}

func (s *fakeSock) Getpeername(fd int) (unix.Sockaddr, error) {
	if s.peer == nil {
		return nil, unix.ENOTCONN
	}
	return s.peer, nil
}

func (s *fakeSock) Getsockname(fd int) (unix.Sockaddr, error) {
	if s.local == nil {
		return nil, unix.EBADF
	}
	return s.local, nil
}
