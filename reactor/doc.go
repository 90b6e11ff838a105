// File: reactor/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor is a reference single-threaded epoll reactor for the
// descriptor core: poller membership derived from the descriptors'
// readiness predicates, a cached coarse loop clock, a heartbeat queue,
// the close sweep, and a loopbreak self-pipe for waking the loop from
// other threads.
//
// Production embedders are expected to bring their own reactor behind
// api.Reactor; this one exists to run the core end-to-end and to serve
// the integration tests.
package reactor
