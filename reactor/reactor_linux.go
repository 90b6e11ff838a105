// File: reactor/reactor_linux.go
//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/binding"
	"github.com/momentics/hioload-reactor/descriptor"
)

// fdDescriptor is what the poller needs beyond api.Descriptor: the
// raw handle to register.
type fdDescriptor interface {
	api.Descriptor
	Fd() int
}

// Reactor is the reference epoll implementation of api.Reactor.
type Reactor struct {
	cfg Config
	log zerolog.Logger

	epfd int

	loopTime int64 // cached per loop pass, microseconds

	cb api.Callback

	// descriptors is the full set the sweep owns; it is independent of
	// poller membership, which a hard close leaves early.
	descriptors map[fdDescriptor]struct{}

	members map[fdDescriptor]int // descriptor -> registered fd
	byFd    map[int]fdDescriptor

	heartbeats map[api.Descriptor]int64

	closeScheduled int

	loopbreak     *descriptor.Loopbreak
	lbWriteFd     int
	jobsMu        sync.Mutex
	jobs          []func()
	watchReader   func()
	stopRequested atomic.Bool
}

// New builds a reactor, initializes the binding registry and installs
// the loopbreak self-pipe.
func New(cfg Config) (*Reactor, error) {
	cfg.fill()

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	binding.Init()

	r := &Reactor{
		cfg:         cfg,
		log:         cfg.Logger,
		epfd:        epfd,
		descriptors: make(map[fdDescriptor]struct{}),
		members:     make(map[fdDescriptor]int),
		byFd:        make(map[int]fdDescriptor),
		heartbeats:  make(map[api.Descriptor]int64),
	}
	r.loopTime = r.RealTime()

	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("loopbreak pipe: %w", err)
	}
	r.lbWriteFd = pipeFds[1]

	lb, err := descriptor.NewLoopbreak(pipeFds[0], r)
	if err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(pipeFds[0])
		_ = unix.Close(pipeFds[1])
		return nil, err
	}
	r.loopbreak = lb
	r.Add(lb)

	return r, nil
}

// SetEventCallback installs the trampoline handed to every descriptor
// added afterwards. Install it before adding descriptors: Add
// snapshots the callback, so a descriptor added earlier keeps whatever
// it got then (possibly none).
func (r *Reactor) SetEventCallback(cb api.Callback) { r.cb = cb }

// SetWatchReader installs the hook ReadWatchEvents delegates to.
func (r *Reactor) SetWatchReader(fn func()) { r.watchReader = fn }

func (r *Reactor) interest(d fdDescriptor) uint32 {
	var ev uint32
	if d.SelectForRead() {
		ev |= unix.EPOLLIN
	}
	if d.SelectForWrite() {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Add registers a descriptor with the poller and installs the event
// trampoline.
func (r *Reactor) Add(d api.Descriptor) {
	fd, ok := d.(fdDescriptor)
	if !ok {
		panic("reactor: descriptor without a pollable handle")
	}
	d.SetEventCallback(r.cb)
	r.descriptors[fd] = struct{}{}
	ev := unix.EpollEvent{Events: r.interest(fd), Fd: int32(fd.Fd())}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd.Fd(), &ev); err != nil {
		r.log.Error().Err(err).Int("fd", fd.Fd()).Msg("epoll ctl add")
		return
	}
	r.members[fd] = fd.Fd()
	r.byFd[fd.Fd()] = fd
}

// Modify re-derives poller interest from the readiness predicates.
func (r *Reactor) Modify(d api.Descriptor) {
	fd, ok := d.(fdDescriptor)
	if !ok {
		return
	}
	regFd, registered := r.members[fd]
	if !registered {
		return
	}
	ev := unix.EpollEvent{Events: r.interest(fd), Fd: int32(regFd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, regFd, &ev); err != nil {
		r.log.Error().Err(err).Int("fd", regFd).Msg("epoll ctl mod")
	}
}

// Deregister removes a descriptor from the poller.
func (r *Reactor) Deregister(d api.Descriptor) {
	fd, ok := d.(fdDescriptor)
	if !ok {
		return
	}
	regFd, registered := r.members[fd]
	if !registered {
		return
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, regFd, nil); err != nil {
		r.log.Debug().Err(err).Int("fd", regFd).Msg("epoll ctl del")
	}
	delete(r.members, fd)
	delete(r.byFd, regFd)
}

// QueueHeartbeat schedules the descriptor at its next deadline.
func (r *Reactor) QueueHeartbeat(d api.Descriptor) {
	if at := d.NextHeartbeat(); at != 0 {
		r.heartbeats[d] = at
	}
}

// ClearHeartbeat drops a previously queued entry.
func (r *Reactor) ClearHeartbeat(at int64, d api.Descriptor) {
	if r.heartbeats[d] == at {
		delete(r.heartbeats, d)
	}
}

// CurrentLoopTime is the cached coarse clock for this loop pass.
func (r *Reactor) CurrentLoopTime() int64 { return r.loopTime }

// RealTime is a fresh clock reading in microseconds.
func (r *Reactor) RealTime() int64 { return time.Now().UnixMicro() }

// TimerQuantum is the heartbeat granularity in microseconds.
func (r *Reactor) TimerQuantum() int64 { return int64(r.cfg.TimerQuantumMs) * 1000 }

// Name2Address resolves host:port for the given socket type.
func (r *Reactor) Name2Address(host string, port int, socktype int) (unix.Sockaddr, error) {
	return resolveAddress(host, port, socktype)
}

// SimultaneousAcceptCount bounds the acceptor's per-tick loop.
func (r *Reactor) SimultaneousAcceptCount() int { return r.cfg.AcceptBatch }

// IncrementCloseScheduled and DecrementCloseScheduled keep the pending
// closure count the sweep is bounded by.
func (r *Reactor) IncrementCloseScheduled() { r.closeScheduled++ }
func (r *Reactor) DecrementCloseScheduled() { r.closeScheduled-- }

// NumCloseScheduled reports pending closures.
func (r *Reactor) NumCloseScheduled() int { return r.closeScheduled }

// Logger returns the ambient logger.
func (r *Reactor) Logger() *zerolog.Logger { return &r.log }

// ReadLoopbreak drains the self-pipe and runs externally scheduled
// jobs on the reactor thread.
func (r *Reactor) ReadLoopbreak() {
	var buf [128]byte
	for {
		n, err := unix.Read(r.loopbreak.Fd(), buf[:])
		if n <= 0 || err != nil {
			break
		}
	}
	r.jobsMu.Lock()
	jobs := r.jobs
	r.jobs = nil
	r.jobsMu.Unlock()
	for _, fn := range jobs {
		fn()
	}
}

// ReadWatchEvents delegates to the installed watch reader.
func (r *Reactor) ReadWatchEvents() {
	if r.watchReader != nil {
		r.watchReader()
	}
}

// Schedule queues fn to run on the reactor thread and wakes the loop.
// Safe to call from any thread.
func (r *Reactor) Schedule(fn func()) {
	r.jobsMu.Lock()
	r.jobs = append(r.jobs, fn)
	r.jobsMu.Unlock()
	r.Signal()
}

// Signal wakes the loop. Safe to call from any thread.
func (r *Reactor) Signal() {
	var one = [1]byte{1}
	_, _ = unix.Write(r.lbWriteFd, one[:])
}

// Stop asks Run to return after the current pass. Safe to call from
// any thread.
func (r *Reactor) Stop() {
	r.stopRequested.Store(true)
	r.Signal()
}

// Run drives the loop until Stop. Each pass: poll, dispatch writes
// before reads to keep outbound queues light, tick due heartbeats,
// then sweep descriptors whose close came due.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, 128)
	for !r.stopRequested.Load() {
		n, err := unix.EpollWait(r.epfd, events, r.cfg.TimerQuantumMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		r.loopTime = r.RealTime()

		for i := 0; i < n; i++ {
			ev := events[i]
			d, ok := r.byFd[int(ev.Fd)]
			if !ok {
				continue
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				d.OnError()
				continue
			}
			if ev.Events&unix.EPOLLOUT != 0 && !d.ShouldDelete() {
				d.OnWritable()
			}
			if ev.Events&unix.EPOLLIN != 0 && !d.ShouldDelete() {
				d.OnReadable()
			}
		}

		r.tickHeartbeats()
		r.sweep()
	}
	return nil
}

func (r *Reactor) tickHeartbeats() {
	now := r.RealTime()
	var due []api.Descriptor
	for d, at := range r.heartbeats {
		if at <= now {
			due = append(due, d)
		}
	}
	for _, d := range due {
		delete(r.heartbeats, d)
		d.Heartbeat()
		r.QueueHeartbeat(d)
	}
}

// sweep destroys descriptors whose close came due. It walks the full
// descriptor set, not the poller membership: a terminal I/O error
// deregisters from the poller immediately, and the counter covers hard
// closes as well as scheduled ones.
func (r *Reactor) sweep() {
	if r.closeScheduled <= 0 {
		return
	}
	var dead []fdDescriptor
	for d := range r.descriptors {
		if d.ShouldDelete() {
			dead = append(dead, d)
		}
	}
	for _, d := range dead {
		r.Deregister(d)
		delete(r.descriptors, d)
		delete(r.heartbeats, d)
		d.Destroy()
	}
}

// Close destroys every descriptor, releases the poller and tears the
// binding registry down.
func (r *Reactor) Close() error {
	for d := range r.descriptors {
		r.Deregister(d)
		delete(r.descriptors, d)
		d.Destroy()
	}
	_ = unix.Close(r.lbWriteFd)
	err := unix.Close(r.epfd)
	binding.Teardown()
	return err
}
