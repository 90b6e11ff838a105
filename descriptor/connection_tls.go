// File: descriptor/connection_tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package descriptor

import (
	"crypto/x509"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/tlsbox"
)

// tlsInputChunk sizes the plaintext pieces fed into the bridge.
const tlsInputChunk = 2048

// tlsPlainChunk sizes the decrypted pulls, one byte reserved for the
// guard NUL.
const tlsPlainChunk = 2048

// tlsOutputChunk sizes the ciphertext drains toward the raw queue.
const tlsOutputChunk = 4096

type tlsState struct {
	box               api.TlsBridge
	parms             api.TlsParms
	handshakeSignaled bool
	peerAccepted      bool
	factory           func(parms api.TlsParms, server bool) (api.TlsBridge, error)
}

func defaultTlsFactory(parms api.TlsParms, server bool) (api.TlsBridge, error) {
	return tlsbox.New(parms, server)
}

// SetTlsParms configures the bridge-to-be. Must be called before
// StartTls; once the bridge exists the parameters are frozen.
func (c *Connection) SetTlsParms(parms api.TlsParms) error {
	if c.tls.box != nil {
		return api.ErrTLSActive
	}
	c.tls.parms = parms
	return nil
}

// StartTls creates the bridge and begins the handshake. An accepted
// connection runs the server side, a dialed one the client side.
func (c *Connection) StartTls() error {
	if c.tls.box != nil {
		return api.ErrTLSActive
	}
	parms := c.tls.parms
	if parms.VerifyPeer {
		parms.VerifyCallback = c.verifySslPeer
	}
	box, err := c.tls.factory(parms, c.serverMode)
	if err != nil {
		return err
	}
	c.tls.box = box
	c.dispatchCiphertext()
	return nil
}

// IsTls reports whether a bridge is attached.
func (c *Connection) IsTls() bool { return c.tls.box != nil }

// dispatchInboundData feeds peer bytes through the bridge when TLS is
// active, replaying decrypted chunks through the generic dispatch, and
// hands them straight through otherwise.
func (c *Connection) dispatchInboundData(buf []byte) {
	if c.tls.box == nil {
		c.genericInboundDispatch(buf)
		return
	}

	c.tls.box.PutCiphertext(buf)

	var pb [tlsPlainChunk]byte
	s := 0
	for {
		s = c.tls.box.GetPlaintext(pb[:len(pb)-1])
		if s <= 0 {
			break
		}
		c.checkHandshakeStatus()
		pb[s] = 0
		c.genericInboundDispatch(pb[:s])
	}

	// A fatal handshake failure shuts the connection down with a
	// protocol-level reason.
	if s == -2 {
		c.unbindReason = int(unix.EPROTO)
		c.scheduleClose(false)
		return
	}

	c.checkHandshakeStatus()
	c.dispatchCiphertext()
}

// checkHandshakeStatus emits the handshake-completed event exactly
// once.
func (c *Connection) checkHandshakeStatus() {
	if c.tls.box != nil && !c.tls.handshakeSignaled && c.tls.box.IsHandshakeCompleted() {
		c.tls.handshakeSignaled = true
		c.emit(c.bnd, api.SslHandshakeCompleted, nil, 0)
	}
}

// dispatchCiphertext loops until no progress: drain pending records to
// the raw outbound queue, then pump the bridge's internal buffers
// forward.
func (c *Connection) dispatchCiphertext() {
	var big [tlsOutputChunk]byte
	didWork := true
	for didWork {
		didWork = false

		for c.tls.box.CanGetCiphertext() {
			r := c.tls.box.GetCiphertext(big[:])
			if r <= 0 {
				break
			}
			c.sendRawOutboundData(big[:r])
			didWork = true
		}

		for {
			w := c.tls.box.PutPlaintext(nil)
			if w > 0 {
				didWork = true
				continue
			}
			if w < 0 {
				c.scheduleClose(false)
			}
			break
		}
	}
}

// sendTlsOutboundData chunks plaintext into the bridge, flushing
// ciphertext after each piece, and returns the plaintext byte count
// accepted.
func (c *Connection) sendTlsOutboundData(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		end := written + tlsInputChunk
		if end > len(data) {
			end = len(data)
		}
		w := c.tls.box.PutPlaintext(data[written:end])
		if w < 0 {
			c.scheduleClose(false)
			return written, nil
		}
		c.dispatchCiphertext()
		written = end
	}
	return written, nil
}

func (c *Connection) verifySslPeer(der []byte) bool {
	c.tls.peerAccepted = false
	c.emit(c.bnd, api.SslVerify, der, uint64(len(der)))
	return c.tls.peerAccepted
}

// AcceptSslPeer accepts the peer certificate under mediation; valid
// only during the SslVerify callback.
func (c *Connection) AcceptSslPeer() { c.tls.peerAccepted = true }

// PeerCert returns the peer's certificate.
func (c *Connection) PeerCert() (*x509.Certificate, error) {
	if c.tls.box == nil {
		return nil, api.ErrTLSNotActive
	}
	return c.tls.box.PeerCert(), nil
}

// CipherName returns the negotiated cipher suite name.
func (c *Connection) CipherName() (string, error) {
	if c.tls.box == nil {
		return "", api.ErrTLSNotActive
	}
	return c.tls.box.CipherName(), nil
}

// CipherBits returns the negotiated cipher strength.
func (c *Connection) CipherBits() (int, error) {
	if c.tls.box == nil {
		return 0, api.ErrTLSNotActive
	}
	return c.tls.box.CipherBits(), nil
}

// CipherProtocol returns the negotiated protocol version name.
func (c *Connection) CipherProtocol() (string, error) {
	if c.tls.box == nil {
		return "", api.ErrTLSNotActive
	}
	return c.tls.box.CipherProtocol(), nil
}

// SNIHostname returns the server name carried by the handshake.
func (c *Connection) SNIHostname() (string, error) {
	if c.tls.box == nil {
		return "", api.ErrTLSNotActive
	}
	return c.tls.box.SNIHostname(), nil
}
