package crypto

import (
	"encoding/binary"
)

// PacketOverhead is the counter plus the AEAD tag added by EncryptPacket
const PacketOverhead = counterSize + tagSize

const counterSize = 8

// EncryptPacket encrypts a transport message and prefixes it with its
// big endian nonce, so the peer can decrypt it with DecryptPacket even if
// packets are lost or reordered
func (s *Session) EncryptPacket(plaintext []byte) ([]byte, error) {
	c, err := s.transportCipher(s.send)
	if err != nil {
		return nil, err
	}
	if len(plaintext)+PacketOverhead > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	packet := make([]byte, counterSize, PacketOverhead+len(plaintext))
	binary.BigEndian.PutUint64(packet, c.Nonce())
	return c.EncryptWithAd(packet, nil, plaintext)
}

// DecryptPacket decrypts a packet from EncryptPacket. Replayed packets fail
// with ErrReplay.
func (s *Session) DecryptPacket(packet []byte) ([]byte, error) {
	if len(packet) < PacketOverhead {
		return nil, ErrShortMessage
	}
	counter := binary.BigEndian.Uint64(packet)
	// the counter is authenticated implicitly: any other nonce fails to open
	return s.ReadMessageWithNonce(counter, packet[counterSize:])
}
