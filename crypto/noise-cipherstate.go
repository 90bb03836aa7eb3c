package crypto

// NewCipherState returns an empty CipherState for the given cipher
func NewCipherState(c Cipher) *CipherState {
	return &CipherState{cipher: c}
}

// InitializeKey initializes CipherState with a key and resets the nonce.
// An empty key leaves the CipherState without a key.
func (c *CipherState) InitializeKey(key []byte) error {
	c.clearKey()
	c.nonce = 0
	c.window.Reset()
	if len(key) == 0 {
		return nil
	}
	if len(key) != CipherKeySize {
		return ErrKeySize
	}
	aead, err := c.cipher.New(key)
	if err != nil {
		return err
	}
	c.key = append([]byte(nil), key...)
	c.aead = aead
	return nil
}

// HasKey returns whether the CipherState has a key
func (c *CipherState) HasKey() bool {
	return c.aead != nil
}

// Nonce returns the nonce the next EncryptWithAd or DecryptWithAd will use
func (c *CipherState) Nonce() uint64 {
	return c.nonce
}

// SetNonce sets the nonce for the CipherState
func (c *CipherState) SetNonce(nonce uint64) {
	c.nonce = nonce
}

// Cipher returns the cipher family of the CipherState
func (c *CipherState) Cipher() Cipher {
	return c.cipher
}

// EncryptWithAd appends the encrypted plaintext to dst. Without a key the
// plaintext is appended as is.
func (c *CipherState) EncryptWithAd(dst, authData, plaintext []byte) ([]byte, error) {
	if c.aead == nil {
		return append(dst, plaintext...), nil
	}
	// 2^64-1 is reserved for rekeying
	if c.nonce == maxNonce {
		return nil, ErrNonceOverflow
	}
	out := c.aead.Seal(dst, c.cipher.EncodeNonce(c.nonce), plaintext, authData)
	c.nonce++
	return out, nil
}

// DecryptWithAd appends the decrypted ciphertext to dst. The nonce only
// advances when authentication succeeds. Nonces are marked in the same
// replay window DecryptWithNonce uses, so a message is accepted once no
// matter which path reads it.
func (c *CipherState) DecryptWithAd(dst, authData, ciphertext []byte) ([]byte, error) {
	if c.aead == nil {
		return append(dst, ciphertext...), nil
	}
	if c.nonce == maxNonce {
		return nil, ErrNonceOverflow
	}
	if !c.window.Test(c.nonce) {
		return nil, ErrReplay
	}
	plaintext, err := c.aead.Open(dst, c.cipher.EncodeNonce(c.nonce), ciphertext, authData)
	if err != nil {
		return nil, ErrDecrypt
	}
	c.window.Mark(c.nonce)
	c.nonce++
	return plaintext, nil
}

// DecryptWithNonce decrypts a message sent under an explicit nonce, for
// transports that reorder or drop packets. Replays and nonces older than
// the replay window fail with ErrReplay. The internal nonce is not touched.
func (c *CipherState) DecryptWithNonce(dst, authData []byte, nonce uint64, ciphertext []byte) ([]byte, error) {
	if c.aead == nil {
		return nil, ErrMissingKeyMaterial
	}
	if nonce == maxNonce {
		return nil, ErrNonceOverflow
	}
	if !c.window.Test(nonce) {
		return nil, ErrReplay
	}
	plaintext, err := c.aead.Open(dst, c.cipher.EncodeNonce(nonce), ciphertext, authData)
	if err != nil {
		return nil, ErrDecrypt
	}
	c.window.Mark(nonce)
	return plaintext, nil
}

// Rekey is a pseudorandom function that replaces the key with a new one.
// The nonce is left as is.
func (c *CipherState) Rekey() error {
	if c.aead == nil {
		return ErrMissingKeyMaterial
	}
	var zeros [CipherKeySize]byte
	tmp := c.aead.Seal(nil, c.cipher.EncodeNonce(maxNonce), zeros[:], nil)
	aead, err := c.cipher.New(tmp[:CipherKeySize])
	if err != nil {
		zeroBytes(tmp)
		return err
	}
	zeroBytes(c.key)
	c.key = append(c.key[:0], tmp[:CipherKeySize]...)
	c.aead = aead
	zeroBytes(tmp)
	return nil
}

// Reset wipes the key and returns the CipherState to its empty state
func (c *CipherState) Reset() {
	c.clearKey()
	c.nonce = 0
	c.window.Reset()
}

func (c *CipherState) clearKey() {
	zeroBytes(c.key)
	c.key = nil
	c.aead = nil
}
