// File: pool/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool owns the byte buffers that move through descriptors:
// outbound pages queued for transmission and the shared inbound read
// buffers handed to callbacks.
//
// Pages are exclusively owned by the queue that holds them; the queue
// keeps exact byte accounting so readiness selection can be derived
// from it without walking the pages.
package pool
