package crypto

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Token is a single instruction in a message pattern
type Token uint8

// Handshake tokens
const (
	TokenInvalid Token = iota
	TokenE
	TokenS
	TokenEE
	TokenES
	TokenSE
	TokenSS
	TokenPSK
)

func (t Token) String() string {
	switch t {
	case TokenE:
		return "e"
	case TokenS:
		return "s"
	case TokenEE:
		return "ee"
	case TokenES:
		return "es"
	case TokenSE:
		return "se"
	case TokenSS:
		return "ss"
	case TokenPSK:
		return "psk"
	}
	return "invalid"
}

// MessagePattern is the ordered tokens of one handshake message
type MessagePattern []Token

// HandshakePattern is a named handshake script. Messages at even indexes are
// sent by the initiator.
type HandshakePattern struct {
	Name                 string
	InitiatorPreMessages MessagePattern
	ResponderPreMessages MessagePattern
	Messages             []MessagePattern

	pskPositions []int
}

// IsOneWay reports whether only the initiator ever sends
func (p *HandshakePattern) IsOneWay() bool {
	return len(p.Messages) == 1
}

// NumPSKs is the number of psk tokens, one pre-shared key is consumed per token
func (p *HandshakePattern) NumPSKs() int {
	n := 0
	for _, msg := range p.Messages {
		for _, t := range msg {
			if t == TokenPSK {
				n++
			}
		}
	}
	return n
}

// IsPSK reports whether the pattern runs in PSK mode
func (p *HandshakePattern) IsPSK() bool {
	return p.NumPSKs() > 0
}

// PSKPositions returns the psk modifier indexes the pattern was built with,
// e.g. [0 2] for NNpsk0+psk2
func (p *HandshakePattern) PSKPositions() []int {
	return append([]int(nil), p.pskPositions...)
}

// PreMessages returns the pre-message of one side
func (p *HandshakePattern) PreMessages(side Role) MessagePattern {
	if side == Initiator {
		return p.InitiatorPreMessages
	}
	return p.ResponderPreMessages
}

// RequiresLocalStatic reports whether the given side must be configured with
// a static key pair
func (p *HandshakePattern) RequiresLocalStatic(side Role) bool {
	if p.PreMessages(side).contains(TokenS) {
		return true
	}
	for i, msg := range p.Messages {
		if senderOf(i) == side && msg.contains(TokenS) {
			return true
		}
	}
	return false
}

// RequiresRemoteStatic reports whether the given side must know the peer's
// static public key before the handshake starts
func (p *HandshakePattern) RequiresRemoteStatic(side Role) bool {
	return p.PreMessages(side.peer()).contains(TokenS)
}

func (m MessagePattern) contains(t Token) bool {
	for _, v := range m {
		if v == t {
			return true
		}
	}
	return false
}

func (r Role) peer() Role {
	if r == Initiator {
		return Responder
	}
	return Initiator
}

func senderOf(index int) Role {
	if index&1 == 0 {
		return Initiator
	}
	return Responder
}

var (
	// HandshakeN is the N one-way pattern
	HandshakeN = &HandshakePattern{
		Name:                 "N",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES},
		},
	}
	// HandshakeK is the K one-way pattern
	HandshakeK = &HandshakePattern{
		Name:                 "K",
		InitiatorPreMessages: MessagePattern{TokenS},
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES, TokenSS},
		},
	}
	// HandshakeX is the X one-way pattern
	HandshakeX = &HandshakePattern{
		Name:                 "X",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES, TokenS, TokenSS},
		},
	}

	HandshakeNN = &HandshakePattern{
		Name: "NN",
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE},
		},
	}
	HandshakeNK = &HandshakePattern{
		Name:                 "NK",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES},
			{TokenE, TokenEE},
		},
	}
	HandshakeNX = &HandshakePattern{
		Name: "NX",
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE, TokenS, TokenES},
		},
	}
	HandshakeXN = &HandshakePattern{
		Name: "XN",
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE},
			{TokenS, TokenSE},
		},
	}
	HandshakeXK = &HandshakePattern{
		Name:                 "XK",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES},
			{TokenE, TokenEE},
			{TokenS, TokenSE},
		},
	}
	HandshakeXX = &HandshakePattern{
		Name: "XX",
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE, TokenS, TokenES},
			{TokenS, TokenSE},
		},
	}
	HandshakeKN = &HandshakePattern{
		Name:                 "KN",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE, TokenSE},
		},
	}
	HandshakeKK = &HandshakePattern{
		Name:                 "KK",
		InitiatorPreMessages: MessagePattern{TokenS},
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES, TokenSS},
			{TokenE, TokenEE, TokenSE},
		},
	}
	HandshakeKX = &HandshakePattern{
		Name:                 "KX",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE},
			{TokenE, TokenEE, TokenSE, TokenS, TokenES},
		},
	}
	HandshakeIN = &HandshakePattern{
		Name: "IN",
		Messages: []MessagePattern{
			{TokenE, TokenS},
			{TokenE, TokenEE, TokenSE},
		},
	}
	HandshakeIK = &HandshakePattern{
		Name:                 "IK",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages: []MessagePattern{
			{TokenE, TokenES, TokenS, TokenSS},
			{TokenE, TokenEE, TokenSE},
		},
	}
	HandshakeIX = &HandshakePattern{
		Name: "IX",
		Messages: []MessagePattern{
			{TokenE, TokenS},
			{TokenE, TokenEE, TokenSE, TokenS, TokenES},
		},
	}
)

// deferred patterns move a DH one message later than the fundamental pattern
// of the same letters
var deferredPatterns = []*HandshakePattern{
	{
		Name:                 "NK1",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenES}},
	},
	{
		Name:     "NX1",
		Messages: []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS}, {TokenES}},
	},
	{
		Name:     "X1N",
		Messages: []MessagePattern{{TokenE}, {TokenE, TokenEE}, {TokenS}, {TokenSE}},
	},
	{
		Name:                 "X1K",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE, TokenES}, {TokenE, TokenEE}, {TokenS}, {TokenSE}},
	},
	{
		Name:                 "XK1",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenES}, {TokenS, TokenSE}},
	},
	{
		Name:                 "X1K1",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenES}, {TokenS}, {TokenSE}},
	},
	{
		Name:     "X1X",
		Messages: []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS, TokenES}, {TokenS}, {TokenSE}},
	},
	{
		Name:     "XX1",
		Messages: []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS}, {TokenES, TokenS, TokenSE}},
	},
	{
		Name:     "X1X1",
		Messages: []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS}, {TokenES, TokenS}, {TokenSE}},
	},
	{
		Name:                 "K1N",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE}, {TokenSE}},
	},
	{
		Name:                 "K1K",
		InitiatorPreMessages: MessagePattern{TokenS},
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE, TokenES}, {TokenE, TokenEE}, {TokenSE}},
	},
	{
		Name:                 "KK1",
		InitiatorPreMessages: MessagePattern{TokenS},
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenSE, TokenES}},
	},
	{
		Name:                 "K1K1",
		InitiatorPreMessages: MessagePattern{TokenS},
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenES}, {TokenSE}},
	},
	{
		Name:                 "K1X",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS, TokenES}, {TokenSE}},
	},
	{
		Name:                 "KX1",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenSE, TokenS}, {TokenES}},
	},
	{
		Name:                 "K1X1",
		InitiatorPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE}, {TokenE, TokenEE, TokenS}, {TokenSE, TokenES}},
	},
	{
		Name:     "I1N",
		Messages: []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE}, {TokenSE}},
	},
	{
		Name:                 "I1K",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE, TokenES, TokenS}, {TokenE, TokenEE}, {TokenSE}},
	},
	{
		Name:                 "IK1",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE, TokenSE, TokenES}},
	},
	{
		Name:                 "I1K1",
		ResponderPreMessages: MessagePattern{TokenS},
		Messages:             []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE, TokenES}, {TokenSE}},
	},
	{
		Name:     "I1X",
		Messages: []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE, TokenS, TokenES}, {TokenSE}},
	},
	{
		Name:     "IX1",
		Messages: []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE, TokenSE, TokenS}, {TokenES}},
	},
	{
		Name:     "I1X1",
		Messages: []MessagePattern{{TokenE, TokenS}, {TokenE, TokenEE, TokenS}, {TokenSE, TokenES}},
	},
}

// patterns is filled once at init and only read afterwards
var patterns = map[string]*HandshakePattern{}

func init() {
	builtin := []*HandshakePattern{
		HandshakeN, HandshakeK, HandshakeX,
		HandshakeNN, HandshakeNK, HandshakeNX,
		HandshakeXN, HandshakeXK, HandshakeXX,
		HandshakeKN, HandshakeKK, HandshakeKX,
		HandshakeIN, HandshakeIK, HandshakeIX,
	}
	for _, p := range append(builtin, deferredPatterns...) {
		patterns[p.Name] = p
	}
}

// PatternNames returns the sorted names of all base patterns in the registry
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupPattern returns the pattern for a name such as "XX" or "NNpsk0+psk2"
func LookupPattern(name string) (*HandshakePattern, error) {
	base, modifiers := splitPatternName(name)
	p, ok := patterns[base]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
	}
	if modifiers == "" {
		return p, nil
	}
	return applyPSKModifiers(p, modifiers)
}

// the base name is upper case letters and digits, modifiers start at the
// first lower case letter
func splitPatternName(name string) (base, modifiers string) {
	for i, r := range name {
		if unicode.IsLower(r) {
			return name[:i], name[i:]
		}
	}
	return name, ""
}

// applyPSKModifiers builds a new pattern from template: psk0 puts a psk
// token at the start of the first message, pskN at the end of message N-1
func applyPSKModifiers(template *HandshakePattern, modifiers string) (*HandshakePattern, error) {
	p := &HandshakePattern{
		Name:                 template.Name + modifiers,
		InitiatorPreMessages: template.InitiatorPreMessages,
		ResponderPreMessages: template.ResponderPreMessages,
		Messages:             make([]MessagePattern, len(template.Messages)),
	}
	for i, msg := range template.Messages {
		p.Messages[i] = append(MessagePattern{}, msg...)
	}

	seen := make(map[int]bool)
	for _, m := range strings.Split(modifiers, "+") {
		if !strings.HasPrefix(m, "psk") {
			return nil, fmt.Errorf("%w: unsupported modifier %q", ErrUnknownPattern, m)
		}
		digits := strings.TrimPrefix(m, "psk")
		if !isModifierIndex(digits) {
			return nil, fmt.Errorf("%w: %w: malformed modifier %q", ErrUnknownPattern, ErrInvalidProtocolName, m)
		}
		index, err := strconv.Atoi(digits)
		if err != nil || index > len(template.Messages) {
			return nil, fmt.Errorf("%w: invalid modifier %q", ErrUnknownPattern, m)
		}
		if seen[index] {
			return nil, fmt.Errorf("%w: redundant modifier %q", ErrUnknownPattern, m)
		}
		seen[index] = true

		if index == 0 {
			p.Messages[0] = append(MessagePattern{TokenPSK}, p.Messages[0]...)
		} else {
			p.Messages[index-1] = append(p.Messages[index-1], TokenPSK)
		}
		p.pskPositions = append(p.pskPositions, index)
	}

	if err := ValidatePattern(p); err != nil {
		return nil, err
	}
	return p, nil
}

// isModifierIndex accepts plain decimal numbers: no sign, no leading zeros
func isModifierIndex(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidatePattern checks a pattern against the Noise validity rules.
// Every builtin pattern passes; custom patterns should be checked before use.
func ValidatePattern(p *HandshakePattern) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPattern, p.Name, fmt.Sprintf(format, args...))
	}

	sent := map[Role]map[Token]bool{
		Initiator: {},
		Responder: {},
	}
	inEither := func(t Token) bool {
		return sent[Initiator][t] || sent[Responder][t]
	}

	for _, side := range []Role{Initiator, Responder} {
		for _, t := range p.PreMessages(side) {
			if t != TokenE && t != TokenS {
				return invalid("pre-message token %s", t)
			}
			if sent[side][t] {
				return invalid("redundant pre-message token %s", t)
			}
			sent[side][t] = true
		}
	}

	if len(p.Messages) == 0 {
		return invalid("no messages")
	}

	numDH := 0
	for i, msg := range p.Messages {
		side := senderOf(i)
		for _, t := range msg {
			switch t {
			case TokenE, TokenS:
				// a key may only be sent once
				if sent[side][t] {
					return invalid("%s sends %s twice", side, t)
				}
			case TokenEE, TokenES, TokenSE, TokenSS:
				// a DH may only be performed once
				if inEither(t) {
					return invalid("redundant %s", t)
				}
				numDH++
			case TokenPSK:
			default:
				return invalid("message token %s", t)
			}

			// DH only between keys that both sides have
			var possible bool
			switch t {
			case TokenEE:
				possible = sent[Initiator][TokenE] && sent[Responder][TokenE]
			case TokenES:
				possible = sent[Initiator][TokenE] && sent[Responder][TokenS]
			case TokenSE:
				possible = sent[Initiator][TokenS] && sent[Responder][TokenE]
			case TokenSS:
				possible = sent[Initiator][TokenS] && sent[Responder][TokenS]
			default:
				possible = true
			}
			if !possible {
				return invalid("impossible %s", t)
			}
			sent[side][t] = true
		}

		// a party using its static key must also have mixed in its ephemeral
		// with the same remote key before encrypting the payload
		if side == Initiator {
			if inEither(TokenSE) && !inEither(TokenEE) {
				return invalid("initiator payload after se without ee")
			}
			if inEither(TokenSS) && !inEither(TokenES) {
				return invalid("initiator payload after ss without es")
			}
		} else {
			if inEither(TokenES) && !inEither(TokenEE) {
				return invalid("responder payload after es without ee")
			}
			if inEither(TokenSS) && !inEither(TokenSE) {
				return invalid("responder payload after ss without se")
			}
		}

		// in PSK mode nothing may be encrypted before the sender's e
		if inEither(TokenPSK) && !sent[side][TokenE] {
			return invalid("%s payload after psk without e", side)
		}
	}

	if numDH == 0 {
		return invalid("no DH")
	}
	return nil
}
