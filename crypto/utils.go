package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"io"

	"github.com/oasisprotocol/deoxysii"
	"gitlab.com/yawning/bsaes.git"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// CipherChaChaPoly is ChaCha20-Poly1305 from RFC 8439
	CipherChaChaPoly Cipher = cipherChaChaPoly{}
	// CipherAESGCM is AES-256-GCM, backed by a constant time bitsliced AES
	CipherAESGCM Cipher = cipherAESGCM{}
	// CipherDeoxysII is Deoxys-II-256-128. It is not part of the Noise specification.
	CipherDeoxysII Cipher = cipherDeoxysII{}

	// HashSHA256 is SHA-256
	HashSHA256 Hash = hashFunc{name: "SHA256", size: sha256.Size, fn: sha256.New}
	// HashSHA512 is SHA-512
	HashSHA512 Hash = hashFunc{name: "SHA512", size: sha512.Size, fn: sha512.New}
	// HashBLAKE2s is BLAKE2s with a 32 byte digest
	HashBLAKE2s Hash = hashFunc{name: "BLAKE2s", size: blake2s.Size, fn: blake2s256Unkeyed}
	// HashBLAKE2b is BLAKE2b with a 64 byte digest
	HashBLAKE2b Hash = hashFunc{name: "BLAKE2b", size: blake2b.Size, fn: blake2b512Unkeyed}
)

type cipherChaChaPoly struct{}

func (cipherChaChaPoly) String() string {
	return "ChaChaPoly"
}

func (cipherChaChaPoly) New(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

// Noise specifies little endian nonce for ChaCha20
func (cipherChaChaPoly) EncodeNonce(n uint64) []byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[4:], n)
	return nonce[:]
}

type cipherAESGCM struct{}

func (cipherAESGCM) String() string {
	return "AESGCM"
}

func (cipherAESGCM) New(key []byte) (cipher.AEAD, error) {
	block, err := bsaes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (cipherAESGCM) EncodeNonce(n uint64) []byte {
	var nonce [12]byte
	binary.BigEndian.PutUint64(nonce[4:], n)
	return nonce[:]
}

type cipherDeoxysII struct{}

func (cipherDeoxysII) String() string {
	return "DeoxysII"
}

func (cipherDeoxysII) New(key []byte) (cipher.AEAD, error) {
	return deoxysii.New(key)
}

// counter sits in the low 64 bits of the 120 bit nonce
func (cipherDeoxysII) EncodeNonce(n uint64) []byte {
	var nonce [deoxysii.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[deoxysii.NonceSize-8:], n)
	return nonce[:]
}

type hashFunc struct {
	name string
	size int
	fn   func() hash.Hash
}

func (h hashFunc) String() string {
	return h.name
}

func (h hashFunc) Size() int {
	return h.size
}

func (h hashFunc) New() hash.Hash {
	return h.fn()
}

// blake2s hash for HMAC and HKDF functions
func blake2s256Unkeyed() hash.Hash {
	// this can't return an error if key is nil
	h, _ := blake2s.New256(nil)
	return h
}

func blake2b512Unkeyed() hash.Hash {
	h, _ := blake2b.New512(nil)
	return h
}

// hashSum returns HASH(data...) for the given family
func hashSum(h Hash, data ...[]byte) []byte {
	d := h.New()
	for _, b := range data {
		// hash.Hash.Write never returns an error
		_, _ = d.Write(b)
	}
	return d.Sum(nil)
}

// deriveKeys is the Noise HKDF: HMAC-HASH keyed with the chaining key, outputs HASHLEN each.
// RFC 5869 HKDF with salt = chainingKey and empty info produces the same blocks.
func deriveKeys(h Hash, chainingKey, input []byte, outputs int) [][]byte {
	keyReader := hkdf.New(h.New, input, chainingKey, nil)
	out := make([][]byte, outputs)
	for i := range out {
		out[i] = make([]byte, h.Size())
		// at most 3 blocks are read, far below the 255 block limit
		_, _ = io.ReadFull(keyReader, out[i])
	}
	return out
}

// zeroBytes fills all slices passed in with zeros.
func zeroBytes(keys ...[]byte) {
	for _, key := range keys {
		for i := range key {
			key[i] = 0
		}
	}
}
