// File: api/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "crypto/x509"

// TlsBridge is the ciphertext/plaintext pump a stream connection may
// own. The connection feeds peer bytes in with PutCiphertext, pulls
// decrypted bytes with GetPlaintext, pushes application bytes with
// PutPlaintext and drains records for the wire with GetCiphertext.
//
// All operations are nonblocking in the reactor sense: they return
// once the TLS machine has no further synchronous progress to make.
type TlsBridge interface {
	// PutCiphertext feeds bytes received from the peer. Returns false
	// once the bridge has failed fatally.
	PutCiphertext(p []byte) bool

	// GetPlaintext fills p with decrypted bytes. Returns the count,
	// 0 when no plaintext is available yet, -1 when a close/abort is
	// pending, and -2 on a fatal handshake failure.
	GetPlaintext(p []byte) int

	// PutPlaintext absorbs application bytes for encryption and
	// returns the count absorbed, 0 when the bridge cannot take them
	// yet, or -1 on fatal error. Calling with an empty slice pumps
	// internally buffered output forward; the return is then the
	// number of bytes moved.
	PutPlaintext(p []byte) int

	// GetCiphertext fills p with wire bytes and returns the count.
	// CanGetCiphertext reports whether any are pending.
	GetCiphertext(p []byte) int
	CanGetCiphertext() bool

	// IsHandshakeCompleted reports handshake completion.
	IsHandshakeCompleted() bool

	// Introspection; valid once the handshake has completed.
	PeerCert() *x509.Certificate
	CipherName() string
	CipherBits() int
	CipherProtocol() string
	SNIHostname() string

	// Shutdown releases the bridge. Idempotent.
	Shutdown()
}

// TlsParms configures a bridge before it is started. Zero values mean
// "library default" throughout.
type TlsParms struct {
	PrivateKeyFile string // PEM file with the private key
	PrivateKey     string // PEM private key material
	PrivateKeyPass string // password for an encrypted key; tlsbox does not read it, so encrypted keys fail to load
	CertChainFile  string // PEM file with the certificate chain
	Cert           string // PEM certificate material

	VerifyPeer       bool // mediate peer certs through the SslVerify event
	FailIfNoPeerCert bool // reject peers that present no certificate

	SNIHostname string // client: server name; server: reported from the hello
	CipherList  string // colon-separated IANA cipher suite names; tlsbox skips names it does not know
	MinVersion  uint16 // crypto/tls version constant, 0 for default
	MaxVersion  uint16 // crypto/tls version constant, 0 for default

	// VerifyCallback is installed by the owning connection; the bridge
	// calls it with the peer certificate (DER) and honors the result.
	VerifyCallback func(der []byte) bool
}
