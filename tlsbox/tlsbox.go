// File: tlsbox/tlsbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package tlsbox implements api.TlsBridge over crypto/tls.
//
// crypto/tls wants a blocking net.Conn underneath; the reactor wants a
// nonblocking pump. The box bridges the two by running the TLS machine
// on its own goroutine over an in-memory wire and stepping it
// synchronously: every operation that feeds the machine waits until it
// has either parked (needs more peer bytes) or failed before
// returning. To the reactor thread the box therefore behaves like a
// deterministic in-process state machine; handshake completion is
// observable immediately after the ciphertext that caused it.
package tlsbox

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// Box pumps ciphertext and plaintext through a tls.Conn.
type Box struct {
	mu   sync.Mutex
	cond *sync.Cond

	// Wire side: ciphertext in from the peer, ciphertext out for the
	// peer.
	in  bytes.Buffer
	out bytes.Buffer

	// plain holds decrypted application bytes; pending buffers
	// outbound plaintext written before the handshake finished.
	plain   bytes.Buffer
	pending bytes.Buffer

	parked        bool // machine blocked waiting for peer bytes
	done          bool // machine goroutine exited
	closed        bool
	eof           bool
	handshakeDone bool
	fatalErr      error

	conn    *tls.Conn
	writeMu sync.Mutex

	server bool
	sni    string
	parms  api.TlsParms
}

// New builds a box and starts its handshake. A client box emits its
// hello before New returns.
func New(parms api.TlsParms, server bool) (*Box, error) {
	cfg, err := buildConfig(parms, server)
	if err != nil {
		return nil, err
	}

	b := &Box{server: server, parms: parms}
	b.cond = sync.NewCond(&b.mu)

	if server {
		// Capture the SNI the client sent.
		inner := cfg.GetConfigForClient
		cfg.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			b.mu.Lock()
			b.sni = hello.ServerName
			b.mu.Unlock()
			if inner != nil {
				return inner(hello)
			}
			return nil, nil
		}
		b.conn = tls.Server(&wireConn{b: b}, cfg)
	} else {
		b.sni = parms.SNIHostname
		b.conn = tls.Client(&wireConn{b: b}, cfg)
	}

	go b.run()

	b.mu.Lock()
	b.waitQuiesceLocked()
	b.mu.Unlock()
	return b, nil
}

// run is the TLS machine: handshake, flush plaintext buffered during
// the handshake, then decrypt until the wire ends.
func (b *Box) run() {
	defer func() {
		b.mu.Lock()
		b.done = true
		b.cond.Broadcast()
		b.mu.Unlock()
	}()

	if err := b.conn.Handshake(); err != nil {
		b.fail(err)
		return
	}

	b.mu.Lock()
	b.handshakeDone = true
	pend := append([]byte(nil), b.pending.Bytes()...)
	b.pending.Reset()
	b.cond.Broadcast()
	b.mu.Unlock()

	if len(pend) > 0 {
		b.writeMu.Lock()
		_, err := b.conn.Write(pend)
		b.writeMu.Unlock()
		if err != nil {
			b.fail(err)
			return
		}
	}

	buf := make([]byte, 16*1024)
	for {
		n, err := b.conn.Read(buf)
		if n > 0 {
			b.mu.Lock()
			b.plain.Write(buf[:n])
			b.cond.Broadcast()
			b.mu.Unlock()
		}
		if err != nil {
			if err == io.EOF {
				b.mu.Lock()
				b.eof = true
				b.cond.Broadcast()
				b.mu.Unlock()
				return
			}
			b.fail(err)
			return
		}
	}
}

func (b *Box) fail(err error) {
	b.mu.Lock()
	if b.fatalErr == nil {
		b.fatalErr = err
	}
	b.cond.Broadcast()
	b.mu.Unlock()
}

// waitQuiesceLocked blocks until the machine has consumed everything
// it can: parked on an empty inbound buffer, exited, or failed. Bytes
// arriving after the machine has exited are left unconsumed.
func (b *Box) waitQuiesceLocked() {
	for {
		if b.fatalErr != nil || b.done {
			return
		}
		if b.in.Len() == 0 && b.parked {
			return
		}
		b.cond.Wait()
	}
}

// PutCiphertext feeds peer bytes and steps the machine until it
// quiesces. Returns false once the box has failed fatally.
func (b *Box) PutCiphertext(p []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatalErr != nil {
		return false
	}
	b.in.Write(p)
	b.cond.Broadcast()
	b.waitQuiesceLocked()
	return b.fatalErr == nil
}

// GetPlaintext fills p with decrypted bytes: the count, 0 when none
// are ready, -1 when the stream has ended or failed after the
// handshake, -2 on a fatal handshake failure.
func (b *Box) GetPlaintext(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.plain.Len() > 0 {
		n, _ := b.plain.Read(p)
		return n
	}
	if b.fatalErr != nil {
		if !b.handshakeDone {
			return -2
		}
		return -1
	}
	if b.eof || b.closed {
		return -1
	}
	return 0
}

// PutPlaintext absorbs application bytes. Before the handshake
// finishes they are buffered and flushed by the machine; afterwards
// they are encrypted in place. An empty slice pumps buffered bytes
// forward and returns the count moved.
func (b *Box) PutPlaintext(p []byte) int {
	b.mu.Lock()
	if b.fatalErr != nil {
		b.mu.Unlock()
		return -1
	}
	if !b.handshakeDone {
		n, _ := b.pending.Write(p)
		b.mu.Unlock()
		return n
	}
	var pend []byte
	if b.pending.Len() > 0 {
		pend = append([]byte(nil), b.pending.Bytes()...)
		b.pending.Reset()
	}
	b.mu.Unlock()

	moved := 0
	if len(pend) > 0 {
		if !b.writePost(pend) {
			return -1
		}
		moved += len(pend)
	}
	if len(p) > 0 {
		if !b.writePost(p) {
			return -1
		}
		moved += len(p)
	}
	return moved
}

func (b *Box) writePost(p []byte) bool {
	b.writeMu.Lock()
	_, err := b.conn.Write(p)
	b.writeMu.Unlock()
	if err != nil {
		b.fail(err)
		return false
	}
	return true
}

// GetCiphertext drains wire bytes into p.
func (b *Box) GetCiphertext(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.out.Read(p)
	return n
}

// CanGetCiphertext reports whether wire bytes are pending.
func (b *Box) CanGetCiphertext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.Len() > 0
}

// IsHandshakeCompleted reports handshake completion.
func (b *Box) IsHandshakeCompleted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handshakeDone
}

// PeerCert returns the peer's leaf certificate, or nil.
func (b *Box) PeerCert() *x509.Certificate {
	certs := b.conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil
	}
	return certs[0]
}

// CipherName returns the negotiated suite name.
func (b *Box) CipherName() string {
	return tls.CipherSuiteName(b.conn.ConnectionState().CipherSuite)
}

// CipherBits derives the symmetric strength from the suite name.
func (b *Box) CipherBits() int {
	name := b.CipherName()
	switch {
	case strings.Contains(name, "256"):
		return 256
	case strings.Contains(name, "128"):
		return 128
	default:
		return 0
	}
}

// CipherProtocol returns the negotiated protocol version name.
func (b *Box) CipherProtocol() string {
	return tls.VersionName(b.conn.ConnectionState().Version)
}

// SNIHostname returns the server name: configured on a client,
// captured from the hello on a server.
func (b *Box) SNIHostname() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sni
}

// Shutdown releases the box and its machine goroutine. Idempotent.
func (b *Box) Shutdown() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// wireConn is the in-memory net.Conn under the tls.Conn. Read parks
// until peer bytes arrive; Write buffers for GetCiphertext.
type wireConn struct {
	b *Box
}

func (w *wireConn) Read(p []byte) (int, error) {
	b := w.b
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.in.Len() == 0 && !b.closed {
		b.parked = true
		b.cond.Broadcast()
		b.cond.Wait()
	}
	b.parked = false
	if b.in.Len() > 0 {
		n, _ := b.in.Read(p)
		return n, nil
	}
	return 0, io.EOF
}

func (w *wireConn) Write(p []byte) (int, error) {
	b := w.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.out.Write(p)
	b.cond.Broadcast()
	return len(p), nil
}

func (w *wireConn) Close() error {
	w.b.Shutdown()
	return nil
}

func (w *wireConn) LocalAddr() net.Addr                { return wireAddr{} }
func (w *wireConn) RemoteAddr() net.Addr               { return wireAddr{} }
func (w *wireConn) SetDeadline(t time.Time) error      { return nil }
func (w *wireConn) SetReadDeadline(t time.Time) error  { return nil }
func (w *wireConn) SetWriteDeadline(t time.Time) error { return nil }

type wireAddr struct{}

func (wireAddr) Network() string { return "tlsbox" }
func (wireAddr) String() string  { return "tlsbox" }

// buildConfig maps TlsParms onto a tls.Config. Peer verification
// follows the mediation model: no chain building, the verify callback
// decides.
func buildConfig(parms api.TlsParms, server bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: parms.MinVersion,
		MaxVersion: parms.MaxVersion,
		// Verification is mediated by the verify callback below; the
		// default is no verification, like the original runtime.
		InsecureSkipVerify: true,
	}

	if parms.CipherList != "" {
		cfg.CipherSuites = cipherIDs(parms.CipherList)
	}
	if !server && parms.SNIHostname != "" {
		cfg.ServerName = parms.SNIHostname
	}

	cert, haveCert, err := loadCertificate(parms)
	if err != nil {
		return nil, err
	}
	if haveCert {
		cfg.Certificates = []tls.Certificate{cert}
	} else if server {
		selfSigned, err := ephemeralCertificate()
		if err != nil {
			return nil, fmt.Errorf("no certificate configured and cannot generate one: %w", err)
		}
		cfg.Certificates = []tls.Certificate{selfSigned}
	}

	if parms.VerifyPeer {
		if server {
			if parms.FailIfNoPeerCert {
				cfg.ClientAuth = tls.RequireAnyClientCert
			} else {
				cfg.ClientAuth = tls.RequestClientCert
			}
		}
		verify := parms.VerifyCallback
		failIfNone := parms.FailIfNoPeerCert
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				if failIfNone {
					return errors.New("peer presented no certificate")
				}
				return nil
			}
			if verify != nil && !verify(rawCerts[0]) {
				return errors.New("peer certificate rejected")
			}
			return nil
		}
	}

	return cfg, nil
}

// loadCertificate resolves the four certificate/key parameter forms:
// file or inline material, in either slot.
func loadCertificate(parms api.TlsParms) (tls.Certificate, bool, error) {
	certPEM := []byte(parms.Cert)
	keyPEM := []byte(parms.PrivateKey)

	if len(certPEM) == 0 && parms.CertChainFile != "" {
		data, err := os.ReadFile(parms.CertChainFile)
		if err != nil {
			return tls.Certificate{}, false, fmt.Errorf("read cert chain: %w", err)
		}
		certPEM = data
	}
	if len(keyPEM) == 0 && parms.PrivateKeyFile != "" {
		data, err := os.ReadFile(parms.PrivateKeyFile)
		if err != nil {
			return tls.Certificate{}, false, fmt.Errorf("read private key: %w", err)
		}
		keyPEM = data
	}

	if len(certPEM) == 0 {
		return tls.Certificate{}, false, nil
	}
	if len(keyPEM) == 0 {
		keyPEM = certPEM
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, false, fmt.Errorf("load key pair: %w", err)
	}
	return cert, true, nil
}

// cipherIDs maps colon-separated IANA suite names onto suite IDs,
// silently skipping names this TLS library does not know.
func cipherIDs(list string) []uint16 {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	var ids []uint16
	for _, name := range strings.Split(list, ":") {
		if id, ok := known[strings.TrimSpace(name)]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
