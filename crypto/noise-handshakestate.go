package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
)

// HandshakeConfig is everything needed to start one side of a handshake
type HandshakeConfig struct {
	Protocol *Protocol
	Role     Role
	Prologue []byte
	// PresharedKeys are consumed in order, one per psk token
	PresharedKeys   [][]byte
	LocalPrivateKey []byte
	// RemoteStatic is required when the peer's static key is a pre-message
	RemoteStatic []byte
	// RemoteEphemeral is required when the peer's ephemeral key is a pre-message
	RemoteEphemeral []byte
	// Random defaults to crypto/rand
	Random io.Reader

	// set through Builder.FixedEphemeralKeyForTestingOnly
	fixedEphemeral []byte
}

// NewHandshakeState checks that every key the pattern needs is present,
// then initializes the symmetric state and mixes in the prologue and
// pre-messages.
func NewHandshakeState(cfg *HandshakeConfig) (*HandshakeState, error) {
	if cfg.Protocol == nil || cfg.Protocol.Pattern == nil {
		return nil, fmt.Errorf("%w: no protocol", ErrInvalidProtocolName)
	}
	proto := cfg.Protocol
	pattern := proto.Pattern
	dhLen := proto.DH.Size()

	h := &HandshakeState{
		protocol: proto,
		role:     cfg.Role,
		sym:      NewSymmetricState(proto.Cipher, proto.Hash),
		rng:      cfg.Random,
	}
	if h.rng == nil {
		h.rng = rand.Reader
	}
	if cfg.fixedEphemeral != nil {
		if len(cfg.fixedEphemeral) != dhLen {
			return nil, fmt.Errorf("%w: fixed ephemeral key must be %d bytes", ErrKeySize, dhLen)
		}
		// the ephemeral still goes through DH.GenerateKeypair
		h.rng = bytes.NewReader(cfg.fixedEphemeral)
	}

	numPSKs := pattern.NumPSKs()
	if len(cfg.PresharedKeys) < numPSKs {
		return nil, fmt.Errorf("%w: %s needs %d pre-shared keys, got %d",
			ErrMissingKeyMaterial, pattern.Name, numPSKs, len(cfg.PresharedKeys))
	}
	if len(cfg.PresharedKeys) > numPSKs {
		return nil, fmt.Errorf("%w: %s takes %d pre-shared keys, got %d",
			ErrUnusedPresharedKey, pattern.Name, numPSKs, len(cfg.PresharedKeys))
	}
	for _, psk := range cfg.PresharedKeys {
		if len(psk) != PresharedKeySize {
			return nil, fmt.Errorf("%w: pre-shared key must be %d bytes", ErrKeySize, PresharedKeySize)
		}
		h.psks = append(h.psks, append([]byte(nil), psk...))
	}

	if len(cfg.LocalPrivateKey) > 0 {
		kp, err := proto.DH.KeypairFromPrivate(cfg.LocalPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("local static key: %w", err)
		}
		h.static = kp
	} else if pattern.RequiresLocalStatic(cfg.Role) {
		return nil, fmt.Errorf("%w: %s %s needs a local static key", ErrMissingKeyMaterial, pattern.Name, cfg.Role)
	}

	if pattern.RequiresRemoteStatic(cfg.Role) {
		if len(cfg.RemoteStatic) == 0 {
			return nil, fmt.Errorf("%w: %s %s needs the remote static key", ErrMissingKeyMaterial, pattern.Name, cfg.Role)
		}
		if len(cfg.RemoteStatic) != dhLen {
			return nil, fmt.Errorf("%w: remote static key must be %d bytes", ErrKeySize, dhLen)
		}
		h.remoteStatic = append([]byte(nil), cfg.RemoteStatic...)
	}

	if pattern.PreMessages(cfg.Role.peer()).contains(TokenE) {
		if len(cfg.RemoteEphemeral) != dhLen {
			return nil, fmt.Errorf("%w: %s %s needs the remote ephemeral key", ErrMissingKeyMaterial, pattern.Name, cfg.Role)
		}
		h.remoteEphem = append([]byte(nil), cfg.RemoteEphemeral...)
	}
	if pattern.PreMessages(cfg.Role).contains(TokenE) {
		kp, err := proto.DH.GenerateKeypair(h.rng)
		if err != nil {
			return nil, err
		}
		h.ephem = kp
	}

	h.sym.InitializeSymmetric([]byte(proto.String()))
	h.sym.MixHash(cfg.Prologue)
	for _, side := range []Role{Initiator, Responder} {
		for _, t := range pattern.PreMessages(side) {
			var key []byte
			switch {
			case t == TokenS && side == h.role:
				key = h.static.Public
			case t == TokenS:
				key = h.remoteStatic
			case t == TokenE && side == h.role:
				key = h.ephem.Public
			default:
				key = h.remoteEphem
			}
			h.sym.MixHash(key)
			if t == TokenE && pattern.IsPSK() {
				if err := h.sym.MixKey(key); err != nil {
					return nil, err
				}
			}
		}
	}

	h.logger().Debug("handshake initialized")
	return h, nil
}

// WriteMessage appends the next handshake message carrying payload to dst.
// After the final message it returns the initiator to responder and the
// responder to initiator CipherStates; the second is nil for one-way patterns.
func (h *HandshakeState) WriteMessage(dst, payload []byte) ([]byte, *CipherState, *CipherState, error) {
	if err := h.checkTurn(true); err != nil {
		return nil, nil, nil, err
	}
	if h.messageSize(len(payload)) > MaxMessageSize {
		return nil, nil, nil, ErrMessageTooLarge
	}

	out := dst
	var err error
	for _, t := range h.protocol.Pattern.Messages[h.msgIndex] {
		switch t {
		case TokenE:
			out, err = h.writeTokenE(out)
		case TokenS:
			out, err = h.sym.EncryptAndHash(out, h.static.Public)
		case TokenEE, TokenES, TokenSE, TokenSS:
			err = h.mixDH(t)
		case TokenPSK:
			err = h.mixPSK()
		}
		if err != nil {
			return nil, nil, nil, h.fail(err)
		}
	}
	if out, err = h.sym.EncryptAndHash(out, payload); err != nil {
		return nil, nil, nil, h.fail(err)
	}

	h.logger().WithField("length", len(out)-len(dst)).Debug("wrote handshake message")
	c1, c2, err := h.advance()
	if err != nil {
		return nil, nil, nil, err
	}
	return out, c1, c2, nil
}

// ReadMessage processes the next handshake message and appends its payload
// to dst. CipherStates are returned as in WriteMessage.
func (h *HandshakeState) ReadMessage(dst, message []byte) ([]byte, *CipherState, *CipherState, error) {
	if err := h.checkTurn(false); err != nil {
		return nil, nil, nil, err
	}
	if len(message) > MaxMessageSize {
		return nil, nil, nil, ErrMessageTooLarge
	}
	h.logger().WithField("length", len(message)).Debug("reading handshake message")

	dhLen := h.protocol.DH.Size()
	var err error
	for _, t := range h.protocol.Pattern.Messages[h.msgIndex] {
		switch t {
		case TokenE:
			if len(message) < dhLen {
				return nil, nil, nil, h.fail(ErrShortMessage)
			}
			h.remoteEphem = append([]byte(nil), message[:dhLen]...)
			message = message[dhLen:]
			h.sym.MixHash(h.remoteEphem)
			if h.protocol.Pattern.IsPSK() {
				err = h.sym.MixKey(h.remoteEphem)
			}
		case TokenS:
			n := dhLen
			if h.sym.HasKey() {
				n += tagSize
			}
			if len(message) < n {
				return nil, nil, nil, h.fail(ErrShortMessage)
			}
			h.remoteStatic, err = h.sym.DecryptAndHash(nil, message[:n])
			message = message[n:]
		case TokenEE, TokenES, TokenSE, TokenSS:
			err = h.mixDH(t)
		case TokenPSK:
			err = h.mixPSK()
		}
		if err != nil {
			return nil, nil, nil, h.fail(err)
		}
	}
	out, err := h.sym.DecryptAndHash(dst, message)
	if err != nil {
		return nil, nil, nil, h.fail(err)
	}

	c1, c2, err := h.advance()
	if err != nil {
		return nil, nil, nil, err
	}
	return out, c1, c2, nil
}

// checkTurn doesn't change any state, so calling out of turn is not fatal
func (h *HandshakeState) checkTurn(write bool) error {
	if h.done {
		return ErrAlreadyComplete
	}
	if h.err != nil {
		return h.err
	}
	if (senderOf(h.msgIndex) == h.role) != write {
		return ErrOutOfOrder
	}
	return nil
}

// fail poisons the handshake, the chaining key can't be rewound
func (h *HandshakeState) fail(err error) error {
	h.err = err
	h.logger().Debug("handshake failed")
	h.Reset()
	return err
}

func (h *HandshakeState) advance() (*CipherState, *CipherState, error) {
	h.msgIndex++
	if h.msgIndex < len(h.protocol.Pattern.Messages) {
		return nil, nil, nil
	}

	c1, c2, err := h.sym.Split()
	if err != nil {
		return nil, nil, h.fail(err)
	}
	if h.protocol.Pattern.IsOneWay() {
		c2.Reset()
		c2 = nil
	}
	h.handshakeHash = h.sym.GetHandshakeHash()
	h.done = true
	h.logger().Debug("handshake complete")
	h.Reset()
	return c1, c2, nil
}

func (h *HandshakeState) writeTokenE(out []byte) ([]byte, error) {
	kp, err := h.protocol.DH.GenerateKeypair(h.rng)
	if err != nil {
		return nil, err
	}
	h.ephem = kp
	out = append(out, kp.Public...)
	h.sym.MixHash(kp.Public)
	if h.protocol.Pattern.IsPSK() {
		if err := h.sym.MixKey(kp.Public); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mixDH picks keys by token and role, not by message direction
func (h *HandshakeState) mixDH(t Token) error {
	var priv, pub []byte
	initiator := h.role == Initiator
	switch {
	case t == TokenEE:
		priv, pub = h.ephem.Private, h.remoteEphem
	case t == TokenSS:
		priv, pub = h.static.Private, h.remoteStatic
	case t == TokenES && initiator, t == TokenSE && !initiator:
		priv, pub = h.ephem.Private, h.remoteStatic
	default:
		priv, pub = h.static.Private, h.remoteEphem
	}
	if len(priv) == 0 || len(pub) == 0 {
		return fmt.Errorf("%w: no key for %s", ErrMissingKeyMaterial, t)
	}

	shared, err := h.protocol.DH.DH(priv, pub)
	if err != nil {
		return ErrDH
	}
	err = h.sym.MixKey(shared)
	zeroBytes(shared)
	return err
}

func (h *HandshakeState) mixPSK() error {
	if h.pskIndex >= len(h.psks) {
		return ErrMissingKeyMaterial
	}
	err := h.sym.MixKeyAndHash(h.psks[h.pskIndex])
	h.pskIndex++
	return err
}

// messageSize is the exact length of the next message for a payload length
func (h *HandshakeState) messageSize(payloadLen int) int {
	dhLen := h.protocol.DH.Size()
	psk := h.protocol.Pattern.IsPSK()
	keyed := h.sym.HasKey()
	size := 0
	for _, t := range h.protocol.Pattern.Messages[h.msgIndex] {
		switch t {
		case TokenE:
			size += dhLen
			keyed = keyed || psk
		case TokenS:
			size += dhLen
			if keyed {
				size += tagSize
			}
		default:
			keyed = true
		}
	}
	size += payloadLen
	if keyed {
		size += tagSize
	}
	return size
}

// Protocol returns the protocol being run
func (h *HandshakeState) Protocol() *Protocol {
	return h.protocol
}

// Role returns the local role
func (h *HandshakeState) Role() Role {
	return h.role
}

// MessageIndex is the index of the next message pattern
func (h *HandshakeState) MessageIndex() int {
	return h.msgIndex
}

// IsComplete reports whether split has happened
func (h *HandshakeState) IsComplete() bool {
	return h.done
}

// IsMyTurn reports whether the next message is written by the local side
func (h *HandshakeState) IsMyTurn() bool {
	return !h.done && senderOf(h.msgIndex) == h.role
}

// GetHandshakeHash returns h, final once the handshake is complete
func (h *HandshakeState) GetHandshakeHash() []byte {
	if h.done {
		return append([]byte(nil), h.handshakeHash...)
	}
	return h.sym.GetHandshakeHash()
}

// PeerStatic returns the remote static public key, if known
func (h *HandshakeState) PeerStatic() []byte {
	return append([]byte(nil), h.remoteStatic...)
}

// PeerEphemeral returns the remote ephemeral public key, if received
func (h *HandshakeState) PeerEphemeral() []byte {
	return append([]byte(nil), h.remoteEphem...)
}

// LocalEphemeral returns the local ephemeral public key, if generated
func (h *HandshakeState) LocalEphemeral() []byte {
	return append([]byte(nil), h.ephem.Public...)
}

// Reset wipes all private key material held by the handshake
func (h *HandshakeState) Reset() {
	h.static.Clear()
	h.ephem.Clear()
	zeroBytes(h.psks...)
	h.psks = nil
	h.sym.Reset()
}
