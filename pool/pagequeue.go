// File: pool/pagequeue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "github.com/eapache/queue"

// PageQueue is a FIFO of outbound pages with exact byte accounting:
// Bytes always equals the sum of Remaining over the queued pages.
// Indexed access feeds scatter-gather assembly without popping.
type PageQueue struct {
	q     *queue.Queue
	bytes int
}

// NewPageQueue returns an empty queue.
func NewPageQueue() *PageQueue {
	return &PageQueue{q: queue.New()}
}

// Push appends a page.
func (pq *PageQueue) Push(p *Page) {
	pq.q.Add(p)
	pq.bytes += p.Remaining()
}

// Peek returns the head page without removing it, or nil when empty.
func (pq *PageQueue) Peek() *Page {
	if pq.q.Length() == 0 {
		return nil
	}
	return pq.q.Peek().(*Page)
}

// Get returns the i-th page from the head. The caller must keep i
// within [0, Len).
func (pq *PageQueue) Get(i int) *Page {
	return pq.q.Get(i).(*Page)
}

// Pop removes and returns the head page, or nil when empty.
func (pq *PageQueue) Pop() *Page {
	if pq.q.Length() == 0 {
		return nil
	}
	p := pq.q.Remove().(*Page)
	pq.bytes -= p.Remaining()
	return p
}

// Consume advances offsets across the head pages by n written bytes,
// popping pages that are fully sent. It keeps the byte accounting in
// step and returns the number of pages released.
func (pq *PageQueue) Consume(n int) int {
	popped := 0
	pq.bytes -= n
	for n > 0 {
		p := pq.q.Peek().(*Page)
		if rem := p.Remaining(); rem <= n {
			n -= rem
			pq.q.Remove()
			popped++
		} else {
			p.Off += n
			n = 0
		}
	}
	return popped
}

// Len reports the page count; Bytes the unwritten byte total. The two
// differ in meaning for datagram queues, where zero-length packets are
// legal pages carrying no bytes.
func (pq *PageQueue) Len() int   { return pq.q.Length() }
func (pq *PageQueue) Bytes() int { return pq.bytes }

// Clear abandons all queued pages.
func (pq *PageQueue) Clear() {
	pq.q = queue.New()
	pq.bytes = 0
}
