package crypto

import (
	"io"
)

// Builder collects the keys for one side of a handshake.
// Setters copy nothing; the slices must not change until Build returns.
type Builder struct {
	protocol       *Protocol
	prologue       []byte
	psks           [][]byte
	localPrivate   []byte
	remotePublic   []byte
	remoteEphem    []byte
	random         io.Reader
	fixedEphemeral []byte
}

// NewBuilder starts a Builder for the given protocol
func NewBuilder(p *Protocol) *Builder {
	return &Builder{protocol: p}
}

// NewBuilderFromName parses the protocol name and starts a Builder for it
func NewBuilderFromName(name string) (*Builder, error) {
	p, err := ParseProtocolName(name)
	if err != nil {
		return nil, err
	}
	return NewBuilder(p), nil
}

// Prologue sets data both sides must agree on before the handshake
func (b *Builder) Prologue(prologue []byte) *Builder {
	b.prologue = prologue
	return b
}

// PresharedKey adds a pre-shared key. Call it once per psk token, in order.
func (b *Builder) PresharedKey(psk []byte) *Builder {
	b.psks = append(b.psks, psk)
	return b
}

// LocalPrivateKey sets the local static private key
func (b *Builder) LocalPrivateKey(priv []byte) *Builder {
	b.localPrivate = priv
	return b
}

// RemotePublicKey sets the peer's static public key when it is known in advance
func (b *Builder) RemotePublicKey(pub []byte) *Builder {
	b.remotePublic = pub
	return b
}

// RemoteEphemeralKey sets the peer's ephemeral public key for patterns with
// an ephemeral pre-message
func (b *Builder) RemoteEphemeralKey(pub []byte) *Builder {
	b.remoteEphem = pub
	return b
}

// Random replaces crypto/rand as the source for ephemeral keys
func (b *Builder) Random(r io.Reader) *Builder {
	b.random = r
	return b
}

// FixedEphemeralKeyForTestingOnly makes the local ephemeral key fixed so
// handshakes are reproducible. Never use it outside conformance tests.
func (b *Builder) FixedEphemeralKeyForTestingOnly(priv []byte) *Builder {
	b.fixedEphemeral = priv
	return b
}

// BuildInitiator returns a Session that sends the first handshake message
func (b *Builder) BuildInitiator() (*Session, error) {
	return b.build(Initiator)
}

// BuildResponder returns a Session that waits for the first handshake message
func (b *Builder) BuildResponder() (*Session, error) {
	return b.build(Responder)
}

func (b *Builder) build(role Role) (*Session, error) {
	hs, err := NewHandshakeState(&HandshakeConfig{
		Protocol:        b.protocol,
		Role:            role,
		Prologue:        b.prologue,
		PresharedKeys:   b.psks,
		LocalPrivateKey: b.localPrivate,
		RemoteStatic:    b.remotePublic,
		RemoteEphemeral: b.remoteEphem,
		Random:          b.random,
		fixedEphemeral:  b.fixedEphemeral,
	})
	if err != nil {
		return nil, err
	}
	return &Session{role: role, hs: hs}, nil
}

// Session is one side of a Noise channel. It runs the handshake and then
// carries transport messages. A Session is not safe for concurrent use.
type Session struct {
	role Role
	// nil after split
	hs *HandshakeState

	send *CipherState
	recv *CipherState

	protocol      *Protocol
	handshakeHash []byte
	remoteStatic  []byte
}

// WriteMessage writes the next handshake message, or after the handshake
// encrypts a transport message
func (s *Session) WriteMessage(payload []byte) ([]byte, error) {
	if s.hs != nil {
		return s.WriteHandshakeMessage(payload)
	}
	return s.WriteTransportMessage(payload)
}

// ReadMessage reads the next handshake message, or after the handshake
// decrypts a transport message
func (s *Session) ReadMessage(message []byte) ([]byte, error) {
	if s.hs != nil {
		return s.ReadHandshakeMessage(message)
	}
	return s.ReadTransportMessage(message)
}

// WriteHandshakeMessage writes the next handshake message
func (s *Session) WriteHandshakeMessage(payload []byte) ([]byte, error) {
	if s.hs == nil {
		return nil, ErrAlreadyComplete
	}
	out, c1, c2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if c1 != nil {
		s.split(c1, c2)
	}
	return out, nil
}

// ReadHandshakeMessage reads the next handshake message and returns its payload
func (s *Session) ReadHandshakeMessage(message []byte) ([]byte, error) {
	if s.hs == nil {
		return nil, ErrAlreadyComplete
	}
	out, c1, c2, err := s.hs.ReadMessage(nil, message)
	if err != nil {
		return nil, err
	}
	if c1 != nil {
		s.split(c1, c2)
	}
	return out, nil
}

// the initiator sends on c1 and the responder on c2
func (s *Session) split(c1, c2 *CipherState) {
	if s.role == Initiator {
		s.send, s.recv = c1, c2
	} else {
		s.send, s.recv = c2, c1
	}
	s.protocol = s.hs.Protocol()
	s.handshakeHash = s.hs.GetHandshakeHash()
	s.remoteStatic = s.hs.PeerStatic()
	s.hs = nil
}

// WriteTransportMessage encrypts payload with the next send nonce
func (s *Session) WriteTransportMessage(payload []byte) ([]byte, error) {
	c, err := s.transportCipher(s.send)
	if err != nil {
		return nil, err
	}
	if len(payload)+tagSize > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return c.EncryptWithAd(nil, nil, payload)
}

// ReadTransportMessage decrypts message with the next receive nonce.
// A failure leaves the nonce where it was.
func (s *Session) ReadTransportMessage(message []byte) ([]byte, error) {
	c, err := s.transportCipher(s.recv)
	if err != nil {
		return nil, err
	}
	if len(message) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	out, err := c.DecryptWithAd(nil, nil, message)
	if err != nil {
		log.WithField("nonce", c.Nonce()).Debug("transport message rejected")
		return nil, err
	}
	return out, nil
}

// ReadMessageWithNonce decrypts a transport message sent under an explicit
// nonce, rejecting replays. Use SendNonce on the sender to learn the nonce
// before writing.
func (s *Session) ReadMessageWithNonce(nonce uint64, message []byte) ([]byte, error) {
	c, err := s.transportCipher(s.recv)
	if err != nil {
		return nil, err
	}
	if len(message) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	out, err := c.DecryptWithNonce(nil, nil, nonce, message)
	if err != nil {
		log.WithField("nonce", nonce).Debug("transport message rejected")
		return nil, err
	}
	return out, nil
}

func (s *Session) transportCipher(c *CipherState) (*CipherState, error) {
	if s.hs != nil {
		return nil, ErrHandshakeIncomplete
	}
	// one-way patterns only have the initiator to responder direction
	if c == nil {
		return nil, ErrOutOfOrder
	}
	return c, nil
}

// SendNonce returns the nonce the next transport write will use
func (s *Session) SendNonce() (uint64, error) {
	c, err := s.transportCipher(s.send)
	if err != nil {
		return 0, err
	}
	return c.Nonce(), nil
}

// ReceiveNonce returns the nonce the next in-order transport read expects
func (s *Session) ReceiveNonce() (uint64, error) {
	c, err := s.transportCipher(s.recv)
	if err != nil {
		return 0, err
	}
	return c.Nonce(), nil
}

// RekeyOutgoing rekeys the send direction. The peer must call RekeyIncoming.
func (s *Session) RekeyOutgoing() error {
	c, err := s.transportCipher(s.send)
	if err != nil {
		return err
	}
	log.Debug("rekeying outgoing cipher")
	return c.Rekey()
}

// RekeyIncoming rekeys the receive direction
func (s *Session) RekeyIncoming() error {
	c, err := s.transportCipher(s.recv)
	if err != nil {
		return err
	}
	log.Debug("rekeying incoming cipher")
	return c.Rekey()
}

// IsHandshakeFinished reports whether the session carries transport messages
func (s *Session) IsHandshakeFinished() bool {
	return s.hs == nil
}

// IsInitiator reports whether the session started the handshake
func (s *Session) IsInitiator() bool {
	return s.role == Initiator
}

// Role returns the local role
func (s *Session) Role() Role {
	return s.role
}

// Protocol returns the negotiated protocol
func (s *Session) Protocol() *Protocol {
	if s.hs != nil {
		return s.hs.Protocol()
	}
	return s.protocol
}

// HandshakeHash returns the handshake hash, usable for channel binding once
// the handshake is finished
func (s *Session) HandshakeHash() []byte {
	if s.hs != nil {
		return s.hs.GetHandshakeHash()
	}
	return append([]byte(nil), s.handshakeHash...)
}

// RemoteStatic returns the peer's static public key, if known
func (s *Session) RemoteStatic() []byte {
	if s.hs != nil {
		return s.hs.PeerStatic()
	}
	return append([]byte(nil), s.remoteStatic...)
}

// Close wipes all keys. The Session can't be used afterwards.
func (s *Session) Close() {
	if s.hs != nil {
		s.hs.Reset()
		s.hs = nil
	}
	if s.send != nil {
		s.send.Reset()
		s.send = nil
	}
	if s.recv != nil {
		s.recv.Reset()
		s.recv = nil
	}
}
