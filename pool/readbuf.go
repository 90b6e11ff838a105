// File: pool/readbuf.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// ReadBufferSize is the payload capacity of one inbound read buffer.
// Buffers are allocated one byte larger so a guard NUL can always be
// appended past the payload before dispatch.
const ReadBufferSize = 16 * 1024

var readBufs = sync.Pool{
	New: func() any {
		b := make([]byte, ReadBufferSize+1)
		return &b
	},
}

// GetReadBuffer returns a buffer of ReadBufferSize+1 bytes. The extra
// byte is reserved for the guard NUL.
func GetReadBuffer() []byte {
	return *(readBufs.Get().(*[]byte))
}

// PutReadBuffer recycles a buffer obtained from GetReadBuffer. Callers
// must not retain slices of it afterwards; callback data is only valid
// during the callback.
func PutReadBuffer(b []byte) {
	if cap(b) < ReadBufferSize+1 {
		return
	}
	b = b[:ReadBufferSize+1]
	readBufs.Put(&b)
}
