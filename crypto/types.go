package crypto

import (
	"errors"
)

const (
	// MaxMessageSize is the largest handshake or transport message Noise allows
	MaxMessageSize = 65535
	// PresharedKeySize is the only valid length for a psk
	PresharedKeySize = 32
	// CipherKeySize is the key length of every supported AEAD
	CipherKeySize = 32

	tagSize  = 16
	maxNonce = 1<<64 - 1
)

var (
	// ErrUnknownPattern occurs when a pattern name or modifier is not in the registry
	ErrUnknownPattern = errors.New("noisecore/crypto: unknown handshake pattern")
	// ErrMissingKeyMaterial occurs when a pattern needs a key that was not configured
	ErrMissingKeyMaterial = errors.New("noisecore/crypto: missing key material")
	// ErrInvalidProtocolName occurs when a protocol name can't be parsed
	ErrInvalidProtocolName = errors.New("noisecore/crypto: invalid protocol name")
	// ErrDH represents all Diffie-Hellman failures
	ErrDH = errors.New("noisecore/crypto: dh failure")
	// ErrDecrypt represents all decryption errors
	ErrDecrypt = errors.New("noisecore/crypto: decryption error")
	// ErrNonceOverflow occurs when a CipherState runs out of nonces
	ErrNonceOverflow = errors.New("noisecore/crypto: nonce overflow")
	// ErrOutOfOrder occurs when a party acts out of turn
	ErrOutOfOrder = errors.New("noisecore/crypto: operation out of order")
	// ErrAlreadyComplete occurs on handshake operations after split
	ErrAlreadyComplete = errors.New("noisecore/crypto: handshake already complete")
	// ErrHandshakeIncomplete occurs on transport operations before split
	ErrHandshakeIncomplete = errors.New("noisecore/crypto: handshake incomplete")

	// ErrUnusedPresharedKey occurs when more pre-shared keys are given than the pattern has psk tokens
	ErrUnusedPresharedKey = errors.New("noisecore/crypto: unused pre-shared key")
	// ErrKeySize occurs when a key has the wrong length for its primitive
	ErrKeySize = errors.New("noisecore/crypto: invalid key size")
	// ErrShortMessage occurs when a handshake message is truncated
	ErrShortMessage = errors.New("noisecore/crypto: message too short")
	// ErrMessageTooLarge occurs when a message exceeds MaxMessageSize
	ErrMessageTooLarge = errors.New("noisecore/crypto: message too large")
	// ErrInvalidPattern occurs when a pattern breaks the validity rules
	ErrInvalidPattern = errors.New("noisecore/crypto: invalid handshake pattern")
	// ErrReplay occurs when an explicit nonce was already seen or is too old
	ErrReplay = errors.New("noisecore/crypto: replayed nonce")
)

// Role is the side a party plays in a handshake
type Role uint8

const (
	// Initiator sends the first handshake message
	Initiator Role = iota
	// Responder answers the initiator
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	}
	return "unknown"
}
