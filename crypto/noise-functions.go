package crypto

import (
	"crypto/cipher"
	"hash"
	"io"
)

// DH is a Diffie-Hellman function family, e.g. "25519"
type DH interface {
	String() string
	// Size is DHLEN: the length of public keys and of the shared secret
	Size() int
	// GenerateKeypair reads a private key from rng and derives its public key
	GenerateKeypair(rng io.Reader) (KeyPair, error)
	// KeypairFromPrivate derives the public key for an existing private key
	KeypairFromPrivate(priv []byte) (KeyPair, error)
	// DH computes the shared secret, failing with ErrDH on bad or low order keys
	DH(priv, pub []byte) ([]byte, error)
}

// Cipher is an AEAD family together with its Noise nonce encoding
type Cipher interface {
	String() string
	New(key []byte) (cipher.AEAD, error)
	EncodeNonce(n uint64) []byte
}

// Hash is a hash function family used for h, HMAC and HKDF
type Hash interface {
	String() string
	Size() int
	New() hash.Hash
}

// KeyPair is a DH private key and its public key
type KeyPair struct {
	Private []byte
	Public  []byte
}

// IsEmpty reports whether the pair holds no private key
func (k *KeyPair) IsEmpty() bool {
	return len(k.Private) == 0
}

// Clear wipes the private key
func (k *KeyPair) Clear() {
	zeroBytes(k.Private)
	k.Private = nil
}

var (
	supportedDH = map[string]DH{
		DH25519.String(): DH25519,
		DH448.String():   DH448,
	}
	supportedCiphers = map[string]Cipher{
		CipherChaChaPoly.String(): CipherChaChaPoly,
		CipherAESGCM.String():     CipherAESGCM,
		CipherDeoxysII.String():   CipherDeoxysII,
	}
	supportedHashes = map[string]Hash{
		HashSHA256.String():  HashSHA256,
		HashSHA512.String():  HashSHA512,
		HashBLAKE2s.String(): HashBLAKE2s,
		HashBLAKE2b.String(): HashBLAKE2b,
	}
)

// DHByName returns the DH family for a protocol name component, or nil
func DHByName(name string) DH {
	return supportedDH[name]
}

// CipherByName returns the cipher family for a protocol name component, or nil
func CipherByName(name string) Cipher {
	return supportedCiphers[name]
}

// HashByName returns the hash family for a protocol name component, or nil
func HashByName(name string) Hash {
	return supportedHashes[name]
}
