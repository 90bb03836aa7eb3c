package crypto

import (
	"fmt"
	"strings"
)

const protocolPrefix = "Noise"

// Protocol is a handshake pattern together with the primitives it runs over
type Protocol struct {
	Pattern *HandshakePattern
	DH      DH
	Cipher  Cipher
	Hash    Hash
}

// NewProtocol assembles a Protocol, validating the pattern. Use it for
// patterns that are not in the registry.
func NewProtocol(p *HandshakePattern, dh DH, c Cipher, h Hash) (*Protocol, error) {
	if p == nil || dh == nil || c == nil || h == nil {
		return nil, fmt.Errorf("%w: incomplete protocol", ErrInvalidProtocolName)
	}
	if err := ValidatePattern(p); err != nil {
		return nil, err
	}
	return &Protocol{Pattern: p, DH: dh, Cipher: c, Hash: h}, nil
}

// ParseProtocolName parses names like "Noise_XXpsk3_25519_ChaChaPoly_SHA256"
func ParseProtocolName(name string) (*Protocol, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 5 || parts[0] != protocolPrefix {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocolName, name)
	}
	for _, part := range parts[1:] {
		if part == "" {
			return nil, fmt.Errorf("%w: %q has an empty component", ErrInvalidProtocolName, name)
		}
	}

	pattern, err := LookupPattern(parts[1])
	if err != nil {
		return nil, err
	}
	p := &Protocol{
		Pattern: pattern,
		DH:      DHByName(parts[2]),
		Cipher:  CipherByName(parts[3]),
		Hash:    HashByName(parts[4]),
	}
	switch {
	case p.DH == nil:
		return nil, fmt.Errorf("%w: unsupported DH function %q", ErrInvalidProtocolName, parts[2])
	case p.Cipher == nil:
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrInvalidProtocolName, parts[3])
	case p.Hash == nil:
		return nil, fmt.Errorf("%w: unsupported hash %q", ErrInvalidProtocolName, parts[4])
	}
	return p, nil
}

// MustParseProtocolName is like ParseProtocolName but panics on error
func MustParseProtocolName(name string) *Protocol {
	p, err := ParseProtocolName(name)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the full protocol name, which is also what gets hashed
// into the initial handshake state
func (p *Protocol) String() string {
	return strings.Join([]string{
		protocolPrefix,
		p.Pattern.Name,
		p.DH.String(),
		p.Cipher.String(),
		p.Hash.String(),
	}, "_")
}
