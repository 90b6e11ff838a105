// File: binding/binding.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package binding maintains the process-wide table mapping opaque
// handles to descriptor objects. User code crosses the callback
// boundary holding only an api.Binding; resolving it back to an object
// goes through this registry.
//
// The table is created by reactor construction (Init) and torn down at
// reactor destruction (Teardown). Handles are never reused within the
// life of a table, so a stale Binding resolves to nil instead of to a
// recycled object.
package binding

import (
	"sync"

	"github.com/momentics/hioload-reactor/api"
)

// Registry maps Binding handles to live descriptors.
type Registry struct {
	mu   sync.Mutex
	next api.Binding
	objs map[api.Binding]api.Descriptor
}

// NewRegistry returns an empty registry. The first issued handle is 1;
// 0 is never a valid Binding.
func NewRegistry() *Registry {
	return &Registry{next: 1, objs: make(map[api.Binding]api.Descriptor)}
}

// Bind registers d and returns its new handle.
func (r *Registry) Bind(d api.Descriptor) api.Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.next
	r.next++
	r.objs[b] = d
	return b
}

// Unbind removes the handle. Unknown handles are ignored.
func (r *Registry) Unbind(b api.Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objs, b)
}

// Get resolves a handle, or nil when the handle is stale.
func (r *Registry) Get(b api.Binding) api.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.objs[b]
}

// Len reports the number of live bindings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objs)
}

var (
	defaultMu sync.Mutex
	def       *Registry
)

// Init installs a fresh process-wide registry. Called by reactor
// construction.
func Init() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	def = NewRegistry()
}

// Teardown drops the process-wide registry. Called by reactor
// destruction.
func Teardown() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	def = nil
}

// Default returns the process-wide registry, creating it on first use
// so descriptors constructed before any reactor still get handles.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if def == nil {
		def = NewRegistry()
	}
	return def
}

// Bind registers d with the process-wide registry.
func Bind(d api.Descriptor) api.Binding { return Default().Bind(d) }

// Unbind removes b from the process-wide registry.
func Unbind(b api.Binding) { Default().Unbind(b) }

// Get resolves b against the process-wide registry.
func Get(b api.Binding) api.Descriptor { return Default().Get(b) }
