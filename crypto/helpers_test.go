package crypto

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// testBytes returns n deterministic bytes derived from label
func testBytes(label string, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	for i := 0; len(out) < n; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", label, i)))
		out = append(out, sum[:]...)
	}
	return out[:n]
}

type testKeys struct {
	initStatic KeyPair
	respStatic KeyPair
	initEphem  []byte
	respEphem  []byte
	psks       [][]byte
}

func newTestKeys(t testing.TB, proto *Protocol) testKeys {
	t.Helper()
	n := proto.DH.Size()
	initStatic, err := proto.DH.KeypairFromPrivate(testBytes("init-static", n))
	require.NoError(t, err)
	respStatic, err := proto.DH.KeypairFromPrivate(testBytes("resp-static", n))
	require.NoError(t, err)

	k := testKeys{
		initStatic: initStatic,
		respStatic: respStatic,
		initEphem:  testBytes("init-ephemeral", n),
		respEphem:  testBytes("resp-ephemeral", n),
	}
	for i := 0; i < proto.Pattern.NumPSKs(); i++ {
		k.psks = append(k.psks, testBytes(fmt.Sprintf("psk-%d", i), PresharedKeySize))
	}
	return k
}

func (k testKeys) builders(proto *Protocol, prologue []byte) (*Builder, *Builder) {
	ib := NewBuilder(proto).
		Prologue(prologue).
		FixedEphemeralKeyForTestingOnly(k.initEphem)
	rb := NewBuilder(proto).
		Prologue(prologue).
		FixedEphemeralKeyForTestingOnly(k.respEphem)

	if proto.Pattern.RequiresLocalStatic(Initiator) {
		ib.LocalPrivateKey(k.initStatic.Private)
	}
	if proto.Pattern.RequiresLocalStatic(Responder) {
		rb.LocalPrivateKey(k.respStatic.Private)
	}
	if proto.Pattern.RequiresRemoteStatic(Initiator) {
		ib.RemotePublicKey(k.respStatic.Public)
	}
	if proto.Pattern.RequiresRemoteStatic(Responder) {
		rb.RemotePublicKey(k.initStatic.Public)
	}
	for _, psk := range k.psks {
		ib.PresharedKey(psk)
		rb.PresharedKey(psk)
	}
	return ib, rb
}

func newTestPair(t *testing.T, proto *Protocol) (*Session, *Session, testKeys) {
	t.Helper()
	keys := newTestKeys(t, proto)
	ib, rb := keys.builders(proto, []byte("noisecore test"))
	initiator, err := ib.BuildInitiator()
	require.NoError(t, err)
	responder, err := rb.BuildResponder()
	require.NoError(t, err)
	return initiator, responder, keys
}

// runHandshake drives both sessions to completion and returns the messages
func runHandshake(t *testing.T, initiator, responder *Session) [][]byte {
	t.Helper()
	var messages [][]byte
	for i := 0; !initiator.IsHandshakeFinished(); i++ {
		sender, receiver := initiator, responder
		if i%2 == 1 {
			sender, receiver = responder, initiator
		}
		payload := []byte(fmt.Sprintf("handshake payload %d", i))

		msg, err := sender.WriteMessage(payload)
		require.NoError(t, err, "write message %d", i)
		got, err := receiver.ReadMessage(msg)
		require.NoError(t, err, "read message %d", i)
		require.Equal(t, payload, got)
		messages = append(messages, msg)
	}
	require.True(t, responder.IsHandshakeFinished())
	return messages
}
