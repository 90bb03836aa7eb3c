package crypto

// NewSymmetricState returns a SymmetricState for the given primitives.
// InitializeSymmetric must be called before use.
func NewSymmetricState(c Cipher, h Hash) *SymmetricState {
	return &SymmetricState{
		hash:   h,
		cipher: NewCipherState(c),
	}
}

// InitializeSymmetric derives the initial handshake hash and chaining key
// from the protocol name
func (s *SymmetricState) InitializeSymmetric(protocolName []byte) {
	if len(protocolName) <= s.hash.Size() {
		s.h = make([]byte, s.hash.Size())
		copy(s.h, protocolName)
	} else {
		s.h = hashSum(s.hash, protocolName)
	}
	s.chainingKey = append([]byte(nil), s.h...)
	// an empty key can't fail
	_ = s.cipher.InitializeKey(nil)
}

// MixKey mixes chaining key with input data and rekeys the cipher
func (s *SymmetricState) MixKey(input []byte) error {
	keys := deriveKeys(s.hash, s.chainingKey, input, 2)
	zeroBytes(s.chainingKey)
	s.chainingKey = keys[0]
	err := s.cipher.InitializeKey(keys[1][:CipherKeySize])
	zeroBytes(keys[1])
	return err
}

// MixHash mixes hash with input data
func (s *SymmetricState) MixHash(input []byte) {
	s.h = hashSum(s.hash, s.h, input)
}

// MixKeyAndHash mixes key and hash with input data, used for psk tokens
func (s *SymmetricState) MixKeyAndHash(input []byte) error {
	keys := deriveKeys(s.hash, s.chainingKey, input, 3)
	zeroBytes(s.chainingKey)
	s.chainingKey = keys[0]
	s.MixHash(keys[1])
	err := s.cipher.InitializeKey(keys[2][:CipherKeySize])
	zeroBytes(keys[1], keys[2])
	return err
}

// GetHandshakeHash returns a copy of the handshake hash
func (s *SymmetricState) GetHandshakeHash() []byte {
	return append([]byte(nil), s.h...)
}

// HasKey returns whether EncryptAndHash will encrypt
func (s *SymmetricState) HasKey() bool {
	return s.cipher.HasKey()
}

// EncryptAndHash appends the encrypted plaintext to dst and hashes the ciphertext
func (s *SymmetricState) EncryptAndHash(dst, plaintext []byte) ([]byte, error) {
	start := len(dst)
	out, err := s.cipher.EncryptWithAd(dst, s.h, plaintext)
	if err != nil {
		return nil, err
	}
	s.MixHash(out[start:])
	return out, nil
}

// DecryptAndHash appends the decrypted ciphertext to dst and hashes the ciphertext
func (s *SymmetricState) DecryptAndHash(dst, ciphertext []byte) ([]byte, error) {
	out, err := s.cipher.DecryptWithAd(dst, s.h, ciphertext)
	if err != nil {
		return nil, err
	}
	s.MixHash(ciphertext)
	return out, nil
}

// Split returns a pair of CipherStates for encrypting transport messages.
// The first is for initiator to responder traffic.
func (s *SymmetricState) Split() (*CipherState, *CipherState, error) {
	keys := deriveKeys(s.hash, s.chainingKey, nil, 2)
	defer zeroBytes(keys...)

	c1 := NewCipherState(s.cipher.cipher)
	if err := c1.InitializeKey(keys[0][:CipherKeySize]); err != nil {
		return nil, nil, err
	}
	c2 := NewCipherState(s.cipher.cipher)
	if err := c2.InitializeKey(keys[1][:CipherKeySize]); err != nil {
		return nil, nil, err
	}
	return c1, c2, nil
}

// Reset wipes the chaining key and cipher. The handshake hash is kept.
func (s *SymmetricState) Reset() {
	zeroBytes(s.chainingKey)
	s.chainingKey = nil
	s.cipher.Reset()
}
