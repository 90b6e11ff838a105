// File: descriptor/tls_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"bytes"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// fakeBridge scripts the TLS pump without any cryptography.
type fakeBridge struct {
	ciphertextIn bytes.Buffer // fed by PutCiphertext
	plainOut     [][]byte     // returned by GetPlaintext, one per call
	cipherOut    [][]byte     // returned by GetCiphertext, one per call

	plainIn bytes.Buffer // absorbed by PutPlaintext

	handshakeDone bool
	// handshakeAfterBytes completes the handshake once this many
	// ciphertext bytes have arrived.
	handshakeAfterBytes int

	fatalPlain bool // GetPlaintext returns -2
	fatalPut   bool // PutPlaintext returns -1

	shutdowns int
	sni       string
}

func (f *fakeBridge) PutCiphertext(p []byte) bool {
	f.ciphertextIn.Write(p)
	if f.handshakeAfterBytes > 0 && f.ciphertextIn.Len() >= f.handshakeAfterBytes {
		f.handshakeDone = true
	}
	return true
}

func (f *fakeBridge) GetPlaintext(p []byte) int {
	if len(f.plainOut) > 0 {
		chunk := f.plainOut[0]
		f.plainOut = f.plainOut[1:]
		return copy(p, chunk)
	}
	if f.fatalPlain {
		return -2
	}
	return 0
}

func (f *fakeBridge) PutPlaintext(p []byte) int {
	if f.fatalPut {
		return -1
	}
	f.plainIn.Write(p)
	return len(p)
}

func (f *fakeBridge) GetCiphertext(p []byte) int {
	if len(f.cipherOut) == 0 {
		return 0
	}
	chunk := f.cipherOut[0]
	f.cipherOut = f.cipherOut[1:]
	return copy(p, chunk)
}

func (f *fakeBridge) CanGetCiphertext() bool     { return len(f.cipherOut) > 0 }
func (f *fakeBridge) IsHandshakeCompleted() bool { return f.handshakeDone }
func (f *fakeBridge) PeerCert() *x509.Certificate {
	return &x509.Certificate{Raw: []byte{1}}
}
func (f *fakeBridge) CipherName() string     { return "TLS_AES_128_GCM_SHA256" }
func (f *fakeBridge) CipherBits() int        { return 128 }
func (f *fakeBridge) CipherProtocol() string { return "TLS 1.3" }
func (f *fakeBridge) SNIHostname() string    { return f.sni }
func (f *fakeBridge) Shutdown()              { f.shutdowns++ }

func newTlsConnection(t *testing.T, bridge *fakeBridge) (*Connection, *fakeSock, *recorder) {
	t.Helper()
	c, _, s, rec := newTestConnection(t)
	c.tls.factory = func(parms api.TlsParms, server bool) (api.TlsBridge, error) {
		return bridge, nil
	}
	require.NoError(t, c.StartTls())
	return c, s, rec
}

func TestHandshakeCompletedEmittedOnce(t *testing.T) {
	bridge := &fakeBridge{handshakeAfterBytes: 4}
	c, s, rec := newTlsConnection(t, bridge)

	s.reads = []readEvent{{data: []byte("hell")}}
	c.OnReadable()
	assert.Equal(t, 1, rec.count(api.SslHandshakeCompleted))

	s.reads = []readEvent{{data: []byte("more")}}
	c.OnReadable()
	assert.Equal(t, 1, rec.count(api.SslHandshakeCompleted), "exactly once per connection")
}

func TestTlsPlaintextReplaysThroughDispatch(t *testing.T) {
	bridge := &fakeBridge{handshakeAfterBytes: 1, plainOut: [][]byte{[]byte("secret")}}
	c, s, rec := newTlsConnection(t, bridge)

	s.reads = []readEvent{{data: []byte("c")}}
	c.OnReadable()

	require.Equal(t, 1, rec.count(api.ConnectionRead))
	var read *event
	for i := range rec.events {
		if rec.events[i].kind == api.ConnectionRead {
			read = &rec.events[i]
		}
	}
	require.NotNil(t, read)
	assert.Equal(t, []byte("secret"), read.data)
	require.True(t, read.hasT)
	assert.Equal(t, byte(0), read.tail, "decrypted chunks carry the guard NUL too")
}

func TestTlsFatalHandshakeAborts(t *testing.T) {
	bridge := &fakeBridge{fatalPlain: true}
	c, s, rec := newTlsConnection(t, bridge)

	s.reads = []readEvent{{data: []byte("garbage")}}
	c.OnReadable()

	assert.True(t, c.ShouldDelete())
	assert.Equal(t, int(unix.EPROTO), c.UnbindReason())
	c.Destroy()
	require.Equal(t, 1, rec.count(api.ConnectionUnbound))
	assert.Equal(t, uint64(unix.EPROTO), rec.events[len(rec.events)-1].info)
}

func TestTlsSendChunksPlaintext(t *testing.T) {
	bridge := &fakeBridge{handshakeDone: true}
	c, _, _ := newTlsConnection(t, bridge)

	payload := bytes.Repeat([]byte("p"), 5000)
	n, err := c.SendOutboundData(payload)
	require.NoError(t, err)
	assert.Equal(t, 5000, n, "returns the plaintext byte count accepted")
	assert.Equal(t, payload, bridge.plainIn.Bytes())
}

func TestTlsCiphertextFlushedToRawQueue(t *testing.T) {
	bridge := &fakeBridge{handshakeDone: true, cipherOut: [][]byte{[]byte("RECORD")}}
	c, _, _ := newTlsConnection(t, bridge)

	_, err := c.SendOutboundData([]byte("data"))
	require.NoError(t, err)
	assert.Equal(t, 6, c.OutboundDataSize(), "encrypted records land on the raw outbound queue")
}

func TestTlsFatalPumpSchedulesClose(t *testing.T) {
	bridge := &fakeBridge{handshakeDone: true, fatalPut: true}
	c, _, _ := newTlsConnection(t, bridge)

	_, err := c.SendOutboundData([]byte("data"))
	require.NoError(t, err)
	assert.True(t, c.ShouldDelete())
}

func TestSetTlsParmsAfterStart(t *testing.T) {
	bridge := &fakeBridge{}
	c, _, _ := newTlsConnection(t, bridge)
	assert.ErrorIs(t, c.SetTlsParms(api.TlsParms{}), api.ErrTLSActive)
	assert.ErrorIs(t, c.StartTls(), api.ErrTLSActive)
}

func TestTlsIntrospectionRequiresBridge(t *testing.T) {
	c, _, _, _ := newTestConnection(t)
	_, err := c.PeerCert()
	assert.ErrorIs(t, err, api.ErrTLSNotActive)
	_, err = c.CipherName()
	assert.ErrorIs(t, err, api.ErrTLSNotActive)
	_, err = c.CipherBits()
	assert.ErrorIs(t, err, api.ErrTLSNotActive)
	_, err = c.CipherProtocol()
	assert.ErrorIs(t, err, api.ErrTLSNotActive)
	_, err = c.SNIHostname()
	assert.ErrorIs(t, err, api.ErrTLSNotActive)
}

func TestTlsIntrospection(t *testing.T) {
	bridge := &fakeBridge{sni: "example.test"}
	c, _, _ := newTlsConnection(t, bridge)

	name, err := c.CipherName()
	require.NoError(t, err)
	assert.Equal(t, "TLS_AES_128_GCM_SHA256", name)
	bits, err := c.CipherBits()
	require.NoError(t, err)
	assert.Equal(t, 128, bits)
	sni, err := c.SNIHostname()
	require.NoError(t, err)
	assert.Equal(t, "example.test", sni)
}

func TestVerifyPeerMediation(t *testing.T) {
	c, _, _, _ := newTestConnection(t)
	var captured api.TlsParms
	c.tls.factory = func(parms api.TlsParms, server bool) (api.TlsBridge, error) {
		captured = parms
		return &fakeBridge{}, nil
	}
	require.NoError(t, c.SetTlsParms(api.TlsParms{VerifyPeer: true}))

	rec := &recorder{}
	c.SetEventCallback(func(b api.Binding, kind api.EventKind, data []byte, info uint64) {
		rec.callback()(b, kind, data, info)
		if kind == api.SslVerify {
			c.AcceptSslPeer()
		}
	})
	require.NoError(t, c.StartTls())
	require.NotNil(t, captured.VerifyCallback)

	der := []byte{0x30, 0x82}
	assert.True(t, captured.VerifyCallback(der), "acceptance during the callback accepts the peer")
	require.Equal(t, 1, rec.count(api.SslVerify))
	assert.Equal(t, der, rec.events[len(rec.events)-1].data)

	// Without an acceptance call the peer is rejected.
	c.SetEventCallback(rec.callback())
	assert.False(t, captured.VerifyCallback(der))
}

func TestDestroyShutsBridgeDown(t *testing.T) {
	bridge := &fakeBridge{}
	c, _, _ := newTlsConnection(t, bridge)
	require.NoError(t, c.ScheduleClose(false))
	c.Destroy()
	assert.Equal(t, 1, bridge.shutdowns)
}
