package crypto

import (
	"crypto/cipher"
	"io"

	"github.com/malcolmseyd/noisecore/antireplay"
)

// keys and hashes are slices because their length depends on the negotiated
// primitives

// CipherState keeps the state of a cipher with a key and nonce
type CipherState struct {
	cipher Cipher
	aead   cipher.AEAD
	key    []byte
	nonce  uint64
	// only used by DecryptWithNonce
	window antireplay.Window
}

// SymmetricState keeps track of the chaining key and handshake hash shared
// between responder and initiator
type SymmetricState struct {
	hash        Hash
	cipher      *CipherState
	chainingKey []byte
	h           []byte
}

// HandshakeState keeps state for all data necessary for the handshake
type HandshakeState struct {
	protocol *Protocol
	role     Role
	sym      *SymmetricState
	rng      io.Reader

	static       KeyPair
	ephem        KeyPair
	remoteStatic []byte
	remoteEphem  []byte

	psks     [][]byte
	pskIndex int

	// index of the next message pattern to run
	msgIndex      int
	done          bool
	err           error
	handshakeHash []byte
}
