package crypto

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allPatternNames returns every registry pattern plus its first and last
// psk variant
func allPatternNames() []string {
	var names []string
	for _, name := range PatternNames() {
		p, _ := LookupPattern(name)
		names = append(names,
			name,
			name+"psk0",
			fmt.Sprintf("%spsk%d", name, len(p.Messages)),
		)
	}
	return append(names, "NNpsk0+psk2", "XXpsk0+psk3", "IKpsk1+psk2")
}

func checkEstablished(t *testing.T, initiator, responder *Session, keys testKeys) {
	t.Helper()
	require.True(t, initiator.IsHandshakeFinished())
	require.True(t, responder.IsHandshakeFinished())

	assert.Equal(t, initiator.HandshakeHash(), responder.HandshakeHash())
	assert.Len(t, initiator.HandshakeHash(), initiator.Protocol().Hash.Size())
	assert.Equal(t, initiator.send.key, responder.recv.key)

	pattern := initiator.Protocol().Pattern
	if pattern.IsOneWay() {
		assert.Nil(t, initiator.recv)
		assert.Nil(t, responder.send)
	} else {
		assert.Equal(t, initiator.recv.key, responder.send.key)
		assert.NotEqual(t, initiator.send.key, initiator.recv.key)
	}

	if pattern.RequiresLocalStatic(Initiator) {
		assert.Equal(t, keys.initStatic.Public, responder.RemoteStatic())
	}
	if pattern.RequiresLocalStatic(Responder) {
		assert.Equal(t, keys.respStatic.Public, initiator.RemoteStatic())
	}

	msg, err := initiator.WriteMessage([]byte("to responder"))
	require.NoError(t, err)
	pt, err := responder.ReadMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("to responder"), pt)

	if !pattern.IsOneWay() {
		msg, err = responder.WriteMessage([]byte("to initiator"))
		require.NoError(t, err)
		pt, err = initiator.ReadMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, []byte("to initiator"), pt)
	}
}

func TestHandshakeAllPatterns(t *testing.T) {
	for _, name := range allPatternNames() {
		protoName := "Noise_" + name + "_25519_ChaChaPoly_SHA256"
		t.Run(protoName, func(t *testing.T) {
			proto, err := ParseProtocolName(protoName)
			require.NoError(t, err)
			initiator, responder, keys := newTestPair(t, proto)
			messages := runHandshake(t, initiator, responder)
			assert.Len(t, messages, len(proto.Pattern.Messages))
			checkEstablished(t, initiator, responder, keys)
		})
	}
}

func TestHandshakeAllSuites(t *testing.T) {
	for _, pattern := range []string{"XX", "IKpsk2", "NK1", "N", "KK"} {
		for _, dh := range []DH{DH25519, DH448} {
			for _, c := range []Cipher{CipherChaChaPoly, CipherAESGCM, CipherDeoxysII} {
				for _, h := range []Hash{HashSHA256, HashSHA512, HashBLAKE2s, HashBLAKE2b} {
					protoName := fmt.Sprintf("Noise_%s_%s_%s_%s", pattern, dh, c, h)
					t.Run(protoName, func(t *testing.T) {
						proto, err := ParseProtocolName(protoName)
						require.NoError(t, err)
						initiator, responder, keys := newTestPair(t, proto)
						runHandshake(t, initiator, responder)
						checkEstablished(t, initiator, responder, keys)
					})
				}
			}
		}
	}
}

func TestHandshakeDeterministic(t *testing.T) {
	proto := MustParseProtocolName("Noise_XXpsk3_25519_AESGCM_BLAKE2b")

	i1, r1, _ := newTestPair(t, proto)
	first := runHandshake(t, i1, r1)
	i2, r2, _ := newTestPair(t, proto)
	second := runHandshake(t, i2, r2)

	assert.Equal(t, first, second)
	assert.Equal(t, i1.HandshakeHash(), i2.HandshakeHash())
}

func TestHandshakeMessageSizes(t *testing.T) {
	testCases := []struct {
		name     string
		expected []int
	}{
		{"Noise_XX_25519_ChaChaPoly_SHA256", []int{32 + 19, 32 + 48 + 19 + 16, 48 + 19 + 16}},
		{"Noise_XX_448_ChaChaPoly_SHA256", []int{56 + 19, 56 + 72 + 19 + 16, 72 + 19 + 16}},
		{"Noise_NNpsk0_25519_ChaChaPoly_SHA256", []int{32 + 19 + 16, 32 + 19 + 16}},
		{"Noise_NN_25519_ChaChaPoly_SHA256", []int{32 + 19, 32 + 19 + 16}},
		{"Noise_N_25519_ChaChaPoly_SHA256", []int{32 + 19 + 16}},
	}
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			initiator, responder, _ := newTestPair(t, MustParseProtocolName(tC.name))
			messages := runHandshake(t, initiator, responder)
			require.Len(t, messages, len(tC.expected))
			for i, msg := range messages {
				assert.Len(t, msg, tC.expected[i], "message %d", i)
			}
		})
	}
}

func TestHandshakeMessageSizePrediction(t *testing.T) {
	for _, name := range []string{"XX", "IK", "X1X1", "NNpsk0+psk2", "Kpsk0"} {
		t.Run(name, func(t *testing.T) {
			proto := MustParseProtocolName("Noise_" + name + "_448_ChaChaPoly_BLAKE2s")
			initiator, responder, _ := newTestPair(t, proto)
			for i := 0; !initiator.IsHandshakeFinished(); i++ {
				sender, receiver := initiator, responder
				if i%2 == 1 {
					sender, receiver = responder, initiator
				}
				payload := make([]byte, i*7)
				expected := sender.hs.messageSize(len(payload))
				msg, err := sender.WriteMessage(payload)
				require.NoError(t, err)
				assert.Len(t, msg, expected)
				_, err = receiver.ReadMessage(msg)
				require.NoError(t, err)
			}
		})
	}
}

func TestHandshakeOutOfOrder(t *testing.T) {
	proto := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")
	initiator, responder, keys := newTestPair(t, proto)

	_, err := responder.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = initiator.ReadMessage(make([]byte, 32))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	msg, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = initiator.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// wrong turns are not fatal
	msg, err = responder.WriteMessage(nil)
	require.NoError(t, err)
	_, err = initiator.ReadMessage(msg)
	require.NoError(t, err)
	msg, err = initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)

	checkEstablished(t, initiator, responder, keys)
}

func TestHandshakeAfterCompletion(t *testing.T) {
	proto := MustParseProtocolName("Noise_NN_25519_ChaChaPoly_SHA256")
	initiator, responder, _ := newTestPair(t, proto)
	runHandshake(t, initiator, responder)

	_, err := initiator.WriteHandshakeMessage(nil)
	assert.ErrorIs(t, err, ErrAlreadyComplete)
	_, err = responder.ReadHandshakeMessage(make([]byte, 64))
	assert.ErrorIs(t, err, ErrAlreadyComplete)

	keys := newTestKeys(t, proto)
	ib, rb := keys.builders(proto, nil)
	i, err := ib.BuildInitiator()
	require.NoError(t, err)
	r, err := rb.BuildResponder()
	require.NoError(t, err)
	hsi, hsr := i.hs, r.hs
	runHandshake(t, i, r)

	assert.True(t, hsi.IsComplete())
	assert.False(t, hsi.IsMyTurn())
	_, _, _, err = hsi.WriteMessage(nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyComplete)
	_, _, _, err = hsr.ReadMessage(nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyComplete)
	assert.Nil(t, hsi.ephem.Private)
	assert.Nil(t, hsi.sym.chainingKey)
	assert.Equal(t, i.HandshakeHash(), hsi.GetHandshakeHash())
}

func TestTransportBeforeCompletion(t *testing.T) {
	proto := MustParseProtocolName("Noise_NN_25519_ChaChaPoly_SHA256")
	initiator, responder, _ := newTestPair(t, proto)

	_, err := initiator.WriteTransportMessage([]byte("too early"))
	assert.ErrorIs(t, err, ErrHandshakeIncomplete)
	_, err = responder.ReadTransportMessage(make([]byte, 32))
	assert.ErrorIs(t, err, ErrHandshakeIncomplete)
	_, err = initiator.SendNonce()
	assert.ErrorIs(t, err, ErrHandshakeIncomplete)
	_, err = initiator.ReceiveNonce()
	assert.ErrorIs(t, err, ErrHandshakeIncomplete)
	assert.ErrorIs(t, initiator.RekeyOutgoing(), ErrHandshakeIncomplete)
	assert.ErrorIs(t, initiator.RekeyIncoming(), ErrHandshakeIncomplete)
	_, err = initiator.EncryptPacket([]byte("too early"))
	assert.ErrorIs(t, err, ErrHandshakeIncomplete)

	// the handshake is unaffected
	runHandshake(t, initiator, responder)
}

func TestHandshakeConfigErrors(t *testing.T) {
	xx := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")
	nk := MustParseProtocolName("Noise_NK_25519_ChaChaPoly_SHA256")
	nn := MustParseProtocolName("Noise_NN_25519_ChaChaPoly_SHA256")
	nnpsk := MustParseProtocolName("Noise_NNpsk0+psk2_25519_ChaChaPoly_SHA256")
	key := testBytes("key", 32)

	testCases := []struct {
		desc    string
		builder *Builder
		err     error
	}{
		{"no protocol", NewBuilder(nil), ErrInvalidProtocolName},
		{"missing local static", NewBuilder(xx), ErrMissingKeyMaterial},
		{"short local static", NewBuilder(xx).LocalPrivateKey(key[:31]), ErrKeySize},
		{"missing remote static", NewBuilder(nk), ErrMissingKeyMaterial},
		{"short remote static", NewBuilder(nk).RemotePublicKey(key[:16]), ErrKeySize},
		{"missing psk", NewBuilder(nnpsk).PresharedKey(key), ErrMissingKeyMaterial},
		{"unused psk", NewBuilder(nn).PresharedKey(key), ErrUnusedPresharedKey},
		{"short psk", NewBuilder(nnpsk).PresharedKey(key).PresharedKey(key[:16]), ErrKeySize},
		{"short fixed ephemeral", NewBuilder(nn).FixedEphemeralKeyForTestingOnly(key[:8]), ErrKeySize},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, err := tC.builder.BuildInitiator()
			assert.ErrorIs(t, err, tC.err)
		})
	}

	_, err := NewBuilderFromName("Noise_NN_25519_ChaChaPoly_MD5")
	assert.ErrorIs(t, err, ErrInvalidProtocolName)

	// an unneeded static key is allowed, it is just never sent
	_, err = NewBuilder(nn).LocalPrivateKey(key).BuildResponder()
	assert.NoError(t, err)
}

func TestHandshakeTamperingIsFatal(t *testing.T) {
	proto := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")
	initiator, responder, _ := newTestPair(t, proto)

	msg, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)

	msg, err = responder.WriteMessage([]byte("payload"))
	require.NoError(t, err)
	tampered := append([]byte(nil), msg...)
	tampered[len(tampered)-1] ^= 0x80

	_, err = initiator.ReadMessage(tampered)
	assert.ErrorIs(t, err, ErrDecrypt)
	// the state is poisoned, even the genuine message fails now
	_, err = initiator.ReadMessage(msg)
	assert.ErrorIs(t, err, ErrDecrypt)
	_, err = initiator.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrDecrypt)
	assert.False(t, initiator.IsHandshakeFinished())
}

func TestHandshakeShortMessages(t *testing.T) {
	proto := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")

	initiator, responder, _ := newTestPair(t, proto)
	_, err := responder.ReadMessage(make([]byte, 31))
	assert.ErrorIs(t, err, ErrShortMessage)

	initiator, responder, _ = newTestPair(t, proto)
	msg, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)
	msg, err = responder.WriteMessage(nil)
	require.NoError(t, err)
	// e fits but the encrypted s does not
	_, err = initiator.ReadMessage(msg[:32+40])
	assert.ErrorIs(t, err, ErrShortMessage)

	// the payload tag is missing
	initiator, responder, _ = newTestPair(t, proto)
	msg, err = initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)
	msg, err = responder.WriteMessage(nil)
	require.NoError(t, err)
	_, err = initiator.ReadMessage(msg[:len(msg)-1])
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestHandshakeMismatch(t *testing.T) {
	proto := MustParseProtocolName("Noise_NNpsk0_25519_ChaChaPoly_SHA256")
	keys := newTestKeys(t, proto)
	ib, _ := keys.builders(proto, []byte("prologue"))
	initiator, err := ib.BuildInitiator()
	require.NoError(t, err)
	responder, err := NewBuilder(proto).
		Prologue([]byte("prologue")).
		PresharedKey(testBytes("other psk", PresharedKeySize)).
		BuildResponder()
	require.NoError(t, err)

	msg, err := initiator.WriteMessage([]byte("hello"))
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	assert.ErrorIs(t, err, ErrDecrypt)

	// the first NN message is not encrypted, the prologue mismatch shows up
	// on the second
	proto = MustParseProtocolName("Noise_NN_25519_ChaChaPoly_SHA256")
	keys = newTestKeys(t, proto)
	ib, _ = keys.builders(proto, []byte("prologue A"))
	_, rb := keys.builders(proto, []byte("prologue B"))
	initiator, err = ib.BuildInitiator()
	require.NoError(t, err)
	responder, err = rb.BuildResponder()
	require.NoError(t, err)

	msg, err = initiator.WriteMessage([]byte("hello"))
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)
	msg, err = responder.WriteMessage([]byte("hello"))
	require.NoError(t, err)
	_, err = initiator.ReadMessage(msg)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestHandshakeWrongRemoteStatic(t *testing.T) {
	proto := MustParseProtocolName("Noise_IK_25519_ChaChaPoly_SHA256")
	keys := newTestKeys(t, proto)
	other, err := DH25519.KeypairFromPrivate(testBytes("someone else", 32))
	require.NoError(t, err)

	ib, rb := keys.builders(proto, nil)
	initiator, err := ib.RemotePublicKey(other.Public).BuildInitiator()
	require.NoError(t, err)
	responder, err := rb.BuildResponder()
	require.NoError(t, err)

	msg, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestHandshakeMessageTooLarge(t *testing.T) {
	proto := MustParseProtocolName("Noise_NN_25519_ChaChaPoly_SHA256")
	initiator, responder, _ := newTestPair(t, proto)

	_, err := initiator.WriteMessage(make([]byte, MaxMessageSize-32+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = responder.ReadMessage(make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	// neither error is fatal, the largest message still fits
	msg, err := initiator.WriteMessage(make([]byte, MaxMessageSize-32))
	require.NoError(t, err)
	assert.Len(t, msg, MaxMessageSize)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)

	_, err = responder.WriteMessage(make([]byte, MaxMessageSize-32-16+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	msg, err = responder.WriteMessage(make([]byte, MaxMessageSize-32-16))
	require.NoError(t, err)
	_, err = initiator.ReadMessage(msg)
	require.NoError(t, err)

	_, err = initiator.WriteMessage(make([]byte, MaxMessageSize-16+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = responder.ReadMessage(make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	msg, err = initiator.WriteMessage(make([]byte, MaxMessageSize-16))
	require.NoError(t, err)
	_, err = responder.ReadMessage(msg)
	require.NoError(t, err)
}

func TestOneWayHandshake(t *testing.T) {
	for _, name := range []string{"N", "Kpsk0", "Xpsk1"} {
		t.Run(name, func(t *testing.T) {
			proto := MustParseProtocolName("Noise_" + name + "_25519_ChaChaPoly_BLAKE2s")
			initiator, responder, _ := newTestPair(t, proto)
			messages := runHandshake(t, initiator, responder)
			require.Len(t, messages, 1)

			_, err := responder.WriteMessage([]byte("reply"))
			assert.ErrorIs(t, err, ErrOutOfOrder)
			_, err = initiator.ReadMessage(make([]byte, 32))
			assert.ErrorIs(t, err, ErrOutOfOrder)
			_, err = responder.SendNonce()
			assert.ErrorIs(t, err, ErrOutOfOrder)

			for i := 0; i < 3; i++ {
				msg, err := initiator.WriteMessage([]byte{byte(i)})
				require.NoError(t, err)
				pt, err := responder.ReadMessage(msg)
				require.NoError(t, err)
				assert.Equal(t, []byte{byte(i)}, pt)
			}
		})
	}
}

func TestHandshakeRemoteEphemeralPreMessage(t *testing.T) {
	pattern := &HandshakePattern{
		Name:                 "Ee",
		InitiatorPreMessages: MessagePattern{TokenE},
		Messages: []MessagePattern{
			{},
			{TokenE, TokenEE},
		},
	}
	proto, err := NewProtocol(pattern, DH25519, CipherChaChaPoly, HashSHA256)
	require.NoError(t, err)

	initiator, err := NewBuilder(proto).BuildInitiator()
	require.NoError(t, err)
	ephem := initiator.hs.LocalEphemeral()
	require.Len(t, ephem, 32)

	_, err = NewBuilder(proto).BuildResponder()
	assert.ErrorIs(t, err, ErrMissingKeyMaterial)

	responder, err := NewBuilder(proto).RemoteEphemeralKey(ephem).BuildResponder()
	require.NoError(t, err)
	runHandshake(t, initiator, responder)
	assert.Equal(t, initiator.HandshakeHash(), responder.HandshakeHash())
}

func TestHandshakeStateTurns(t *testing.T) {
	proto := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")
	initiator, responder, _ := newTestPair(t, proto)
	hi, hr := initiator.hs, responder.hs

	assert.Equal(t, Initiator, hi.Role())
	assert.Equal(t, Responder, hr.Role())
	assert.True(t, hi.IsMyTurn())
	assert.False(t, hr.IsMyTurn())
	assert.Equal(t, hi.GetHandshakeHash(), hr.GetHandshakeHash())

	var hashes [][]byte
	for i := 0; i < 3; i++ {
		sender, receiver := hi, hr
		if i%2 == 1 {
			sender, receiver = hr, hi
		}
		msg, c1, c2, err := sender.WriteMessage(nil, []byte("payload"))
		require.NoError(t, err)
		_, d1, d2, err := receiver.ReadMessage(nil, msg)
		require.NoError(t, err)
		assert.Equal(t, i+1, sender.MessageIndex())
		assert.Equal(t, sender.GetHandshakeHash(), receiver.GetHandshakeHash())

		if i < 2 {
			assert.Nil(t, c1)
			assert.Nil(t, c2)
			assert.Nil(t, d1)
			assert.Nil(t, d2)
		} else {
			require.NotNil(t, c1)
			require.NotNil(t, c2)
			assert.Equal(t, c1.key, d1.key)
			assert.Equal(t, c2.key, d2.key)
		}
		for _, h := range hashes {
			assert.False(t, bytes.Equal(h, sender.GetHandshakeHash()))
		}
		hashes = append(hashes, sender.GetHandshakeHash())
	}

	assert.Equal(t, hi.PeerStatic(), hr.static.Public)
	assert.Equal(t, hr.PeerEphemeral(), hi.LocalEphemeral())
	assert.Equal(t, hi.PeerEphemeral(), hr.LocalEphemeral())
}

func TestSessionCloseWipesHandshake(t *testing.T) {
	proto := MustParseProtocolName("Noise_XX_25519_ChaChaPoly_SHA256")
	initiator, _, keys := newTestPair(t, proto)
	hs := initiator.hs
	priv := hs.static.Private
	require.Equal(t, keys.initStatic.Private, priv)

	initiator.Close()
	assert.Equal(t, make([]byte, len(priv)), priv)
	assert.True(t, initiator.IsHandshakeFinished())
	_, err := initiator.WriteMessage(nil)
	assert.ErrorIs(t, err, ErrOutOfOrder)
}
