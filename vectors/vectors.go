// Package vectors loads, replays and writes Noise test vectors.
//
// Two JSON layouts are accepted: the noise-c "basic" layout, which names the
// primitives separately and carries a single init_psk/resp_psk, and the
// cacophony layout with protocol_name, init_psks/resp_psks and
// handshake_hash. Encode always writes the cacophony layout.
package vectors

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/malcolmseyd/noisecore/crypto"
)

var (
	// ErrMismatch occurs when a replayed vector produces different bytes
	ErrMismatch = errors.New("noisecore/vectors: mismatch")
	// ErrUnsupported occurs when a vector names a protocol the engine can't run
	ErrUnsupported = errors.New("noisecore/vectors: unsupported protocol")
	// ErrNoProtocol occurs when a vector has neither a protocol name nor all
	// four of pattern, dh, cipher and hash
	ErrNoProtocol = errors.New("noisecore/vectors: vector has no protocol name")
)

// HexBytes is a byte string written as hex in JSON
type HexBytes []byte

// MarshalJSON encodes b as a hex string
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes a hex string
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex field: %w", err)
	}
	*b = decoded
	return nil
}

// Message is one handshake or transport message of a vector
type Message struct {
	Payload    HexBytes `json:"payload"`
	Ciphertext HexBytes `json:"ciphertext"`
}

// Vector is a single test vector. Both sides get their own prologue and
// keys so vectors can also describe mismatched configurations.
type Vector struct {
	Name         string `json:"name,omitempty"`
	ProtocolName string `json:"protocol_name,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	DH           string `json:"dh,omitempty"`
	Cipher       string `json:"cipher,omitempty"`
	Hash         string `json:"hash,omitempty"`

	InitPrologue     HexBytes   `json:"init_prologue"`
	InitPSK          HexBytes   `json:"init_psk,omitempty"`
	InitPSKs         []HexBytes `json:"init_psks,omitempty"`
	InitStatic       HexBytes   `json:"init_static,omitempty"`
	InitEphemeral    HexBytes   `json:"init_ephemeral,omitempty"`
	InitRemoteStatic HexBytes   `json:"init_remote_static,omitempty"`

	RespPrologue     HexBytes   `json:"resp_prologue"`
	RespPSK          HexBytes   `json:"resp_psk,omitempty"`
	RespPSKs         []HexBytes `json:"resp_psks,omitempty"`
	RespStatic       HexBytes   `json:"resp_static,omitempty"`
	RespEphemeral    HexBytes   `json:"resp_ephemeral,omitempty"`
	RespRemoteStatic HexBytes   `json:"resp_remote_static,omitempty"`

	HandshakeHash HexBytes  `json:"handshake_hash,omitempty"`
	Messages      []Message `json:"messages"`
}

// File is the top level object of a vector file
type File struct {
	Vectors []Vector `json:"vectors"`
}

// Load decodes a vector file
func Load(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding vectors: %w", err)
	}
	for i := range f.Vectors {
		if !f.Vectors[i].hasProtocol() {
			return nil, fmt.Errorf("vector %d: %w", i, ErrNoProtocol)
		}
	}
	return &f, nil
}

// LoadFile decodes the vector file at path
func LoadFile(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return Load(fd)
}

// Encode writes f in the cacophony layout
func Encode(w io.Writer, f *File) error {
	out := File{Vectors: make([]Vector, 0, len(f.Vectors))}
	for _, v := range f.Vectors {
		out.Vectors = append(out.Vectors, v.normalized())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// normalized moves the noise-c fields into their cacophony counterparts
func (v Vector) normalized() Vector {
	v.ProtocolName = v.Protocol()
	v.Name, v.Pattern, v.DH, v.Cipher, v.Hash = "", "", "", "", ""
	v.InitPSKs, v.RespPSKs = v.initPSKs(), v.respPSKs()
	v.InitPSK, v.RespPSK = nil, nil
	return v
}

// Protocol returns the full protocol name of the vector
func (v *Vector) Protocol() string {
	switch {
	case v.ProtocolName != "":
		return v.ProtocolName
	case v.Name != "":
		return v.Name
	}
	return strings.Join([]string{"Noise", v.Pattern, v.DH, v.Cipher, v.Hash}, "_")
}

func (v *Vector) hasProtocol() bool {
	if v.ProtocolName != "" || v.Name != "" {
		return true
	}
	return v.Pattern != "" && v.DH != "" && v.Cipher != "" && v.Hash != ""
}

func (v *Vector) initPSKs() []HexBytes {
	if len(v.InitPSKs) > 0 || v.InitPSK == nil {
		return v.InitPSKs
	}
	return []HexBytes{v.InitPSK}
}

func (v *Vector) respPSKs() []HexBytes {
	if len(v.RespPSKs) > 0 || v.RespPSK == nil {
		return v.RespPSKs
	}
	return []HexBytes{v.RespPSK}
}

type side struct {
	prologue     []byte
	psks         []HexBytes
	static       []byte
	ephemeral    []byte
	remoteStatic []byte
}

func newBuilder(proto *crypto.Protocol, s side) *crypto.Builder {
	b := crypto.NewBuilder(proto).Prologue(s.prologue)
	for _, psk := range s.psks {
		b.PresharedKey(psk)
	}
	if len(s.static) > 0 {
		b.LocalPrivateKey(s.static)
	}
	if len(s.remoteStatic) > 0 {
		b.RemotePublicKey(s.remoteStatic)
	}
	if len(s.ephemeral) > 0 {
		b.FixedEphemeralKeyForTestingOnly(s.ephemeral)
	}
	return b
}

// sessions builds both sides of the vector
func (v *Vector) sessions() (*crypto.Session, *crypto.Session, error) {
	if !v.hasProtocol() {
		return nil, nil, ErrNoProtocol
	}
	proto, err := crypto.ParseProtocolName(v.Protocol())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	initiator, err := newBuilder(proto, side{
		prologue:     v.InitPrologue,
		psks:         v.initPSKs(),
		static:       v.InitStatic,
		ephemeral:    v.InitEphemeral,
		remoteStatic: v.InitRemoteStatic,
	}).BuildInitiator()
	if err != nil {
		return nil, nil, fmt.Errorf("building initiator: %w", err)
	}
	responder, err := newBuilder(proto, side{
		prologue:     v.RespPrologue,
		psks:         v.respPSKs(),
		static:       v.RespStatic,
		ephemeral:    v.RespEphemeral,
		remoteStatic: v.RespRemoteStatic,
	}).BuildResponder()
	if err != nil {
		return nil, nil, fmt.Errorf("building responder: %w", err)
	}
	return initiator, responder, nil
}

// the writer alternates by index, one-way patterns only ever have the
// initiator writing
func turn(initiator, responder *crypto.Session, i int) (*crypto.Session, *crypto.Session) {
	if i%2 == 0 || initiator.Protocol().Pattern.IsOneWay() {
		return initiator, responder
	}
	return responder, initiator
}

// Replay runs the vector through the engine and compares every ciphertext,
// every decrypted payload and, if present, the handshake hash
func Replay(v *Vector) error {
	initiator, responder, err := v.sessions()
	if err != nil {
		return err
	}
	defer initiator.Close()
	defer responder.Close()

	for i, m := range v.Messages {
		writer, reader := turn(initiator, responder, i)
		ct, err := writer.WriteMessage(m.Payload)
		if err != nil {
			return fmt.Errorf("message %d: writing: %w", i, err)
		}
		if !bytes.Equal(ct, m.Ciphertext) {
			return fmt.Errorf("%w: message %d: ciphertext %x, expected %x", ErrMismatch, i, ct, []byte(m.Ciphertext))
		}
		pt, err := reader.ReadMessage(ct)
		if err != nil {
			return fmt.Errorf("message %d: reading: %w", i, err)
		}
		if !bytes.Equal(pt, m.Payload) {
			return fmt.Errorf("%w: message %d: payload", ErrMismatch, i)
		}
	}

	if len(v.HandshakeHash) > 0 {
		if !initiator.IsHandshakeFinished() {
			return fmt.Errorf("%w: handshake hash given but the handshake did not finish", ErrMismatch)
		}
		for _, s := range []*crypto.Session{initiator, responder} {
			if !bytes.Equal(s.HandshakeHash(), v.HandshakeHash) {
				return fmt.Errorf("%w: %s handshake hash", ErrMismatch, s.Role())
			}
		}
	}
	return nil
}

// Generate fills in the ciphertexts and handshake hash of v by running the
// engine over its keys and payloads
func Generate(v *Vector) error {
	initiator, responder, err := v.sessions()
	if err != nil {
		return err
	}
	defer initiator.Close()
	defer responder.Close()

	for i := range v.Messages {
		writer, reader := turn(initiator, responder, i)
		ct, err := writer.WriteMessage(v.Messages[i].Payload)
		if err != nil {
			return fmt.Errorf("message %d: writing: %w", i, err)
		}
		if _, err := reader.ReadMessage(ct); err != nil {
			return fmt.Errorf("message %d: reading: %w", i, err)
		}
		v.Messages[i].Ciphertext = ct
	}
	if initiator.IsHandshakeFinished() {
		v.HandshakeHash = initiator.HandshakeHash()
	}
	return nil
}

// Summary counts the outcome of a Run
type Summary struct {
	Passed  int
	Failed  int
	Ignored int
}

// Run replays every vector whose protocol name contains filter. report is
// called once per vector with the replay result; unsupported vectors count
// as ignored.
func Run(f *File, filter string, report func(v *Vector, err error)) Summary {
	var s Summary
	for i := range f.Vectors {
		v := &f.Vectors[i]
		if !strings.Contains(v.Protocol(), filter) {
			continue
		}
		err := Replay(v)
		switch {
		case err == nil:
			s.Passed++
		case errors.Is(err, ErrUnsupported):
			s.Ignored++
		default:
			s.Failed++
		}
		if report != nil {
			report(v, err)
		}
	}
	return s
}
