// File: pool/page.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "golang.org/x/sys/unix"

// Page is one queued chunk of outbound bytes. Off counts the bytes
// already written; the remaining payload is Buf[Off:]. For datagram
// descriptors To carries the per-packet destination; stream pages
// leave it nil.
type Page struct {
	Buf []byte
	Off int
	To  unix.Sockaddr
}

// NewPage copies data into an owned buffer. The copy keeps the page
// independent of the caller's slice, which may be a reused read
// buffer.
func NewPage(data []byte, to unix.Sockaddr) *Page {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Page{Buf: buf, To: to}
}

// Remaining reports the unwritten byte count.
func (p *Page) Remaining() int { return len(p.Buf) - p.Off }

// Payload returns the unwritten bytes.
func (p *Page) Payload() []byte { return p.Buf[p.Off:] }
