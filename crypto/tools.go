package crypto

import (
	"crypto/subtle"
	"io"

	"gitlab.com/yawning/x448.git"
	"golang.org/x/crypto/curve25519"
)

const x448Size = 56

var (
	// DH25519 is X25519 from RFC 7748
	DH25519 DH = dh25519{}
	// DH448 is X448 from RFC 7748
	DH448 DH = dh448{}
)

type dh25519 struct{}

func (dh25519) String() string {
	return "25519"
}

func (dh25519) Size() int {
	return curve25519.PointSize
}

func (d dh25519) GenerateKeypair(rng io.Reader) (KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rng, priv); err != nil {
		return KeyPair{}, err
	}
	clamp(priv)
	kp, err := d.KeypairFromPrivate(priv)
	zeroBytes(priv)
	return kp, err
}

func (dh25519) KeypairFromPrivate(priv []byte) (KeyPair, error) {
	if len(priv) != curve25519.ScalarSize {
		return KeyPair{}, ErrKeySize
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, ErrDH
	}
	return KeyPair{Private: append([]byte(nil), priv...), Public: pub}, nil
}

// x/crypto already rejects an all-zero result
func (dh25519) DH(priv, pub []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize || len(pub) != curve25519.PointSize {
		return nil, ErrDH
	}
	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, ErrDH
	}
	return shared, nil
}

type dh448 struct{}

func (dh448) String() string {
	return "448"
}

func (dh448) Size() int {
	return x448Size
}

func (d dh448) GenerateKeypair(rng io.Reader) (KeyPair, error) {
	priv := make([]byte, x448Size)
	if _, err := io.ReadFull(rng, priv); err != nil {
		return KeyPair{}, err
	}
	kp, err := d.KeypairFromPrivate(priv)
	zeroBytes(priv)
	return kp, err
}

func (dh448) KeypairFromPrivate(priv []byte) (KeyPair, error) {
	if len(priv) != x448Size {
		return KeyPair{}, ErrKeySize
	}
	var sk, pk [x448Size]byte
	copy(sk[:], priv)
	x448.ScalarBaseMult(&pk, &sk)
	zeroBytes(sk[:])
	return KeyPair{Private: append([]byte(nil), priv...), Public: pk[:]}, nil
}

func (dh448) DH(priv, pub []byte) ([]byte, error) {
	if len(priv) != x448Size || len(pub) != x448Size {
		return nil, ErrDH
	}
	var sk, pk, out [x448Size]byte
	copy(sk[:], priv)
	copy(pk[:], pub)
	x448.ScalarMult(&out, &sk, &pk)
	zeroBytes(sk[:])
	if isZero(out[:]) {
		return nil, ErrDH
	}
	return out[:], nil
}

// thank you to wireguard-go for this
// read here: https://web.archive.org/web/20200824034945/https://neilmadden.blog/2020/05/28/whats-the-curve25519-clamping-all-about/
func clamp(k []byte) {
	k[0] &= 248
	k[31] = (k[31] & 127) | 64
}

// isZero runs in constant time
func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}
