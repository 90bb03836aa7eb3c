// Package config maps a TOML handshake description onto a crypto.Builder.
//
// Keys, pre-shared keys and the prologue are standard base64:
//
//	protocol = "Noise_IKpsk2_25519_ChaChaPoly_BLAKE2s"
//	role = "initiator"
//	local_private_key = "..."
//	remote_public_key = "..."
//	preshared_keys = ["..."]
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/malcolmseyd/noisecore/crypto"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("noisecore/config: invalid config")

// Config is one side of a handshake
type Config struct {
	Protocol        string   `toml:"protocol"`
	Role            string   `toml:"role"`
	Prologue        string   `toml:"prologue,omitempty"`
	LocalPrivateKey string   `toml:"local_private_key,omitempty"`
	RemotePublicKey string   `toml:"remote_public_key,omitempty"`
	PresharedKeys   []string `toml:"preshared_keys,omitempty"`

	// filled by Validate
	protocol     *crypto.Protocol
	role         crypto.Role
	prologue     []byte
	localPrivate []byte
	remotePublic []byte
	psks         [][]byte
}

// Load decodes and validates a TOML config. Unknown keys are an error so
// typos don't silently drop key material.
func Load(data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads and validates the config at path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Validate parses the protocol name, role and keys, and checks that the
// pattern gets every key it needs
func (c *Config) Validate() error {
	var err error
	c.protocol, err = crypto.ParseProtocolName(c.Protocol)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch strings.ToLower(c.Role) {
	case "initiator":
		c.role = crypto.Initiator
	case "responder":
		c.role = crypto.Responder
	default:
		return fmt.Errorf("%w: role must be initiator or responder, got %q", ErrInvalidConfig, c.Role)
	}

	if c.prologue, err = decode("prologue", c.Prologue); err != nil {
		return err
	}
	if c.localPrivate, err = decode("local_private_key", c.LocalPrivateKey); err != nil {
		return err
	}
	if c.remotePublic, err = decode("remote_public_key", c.RemotePublicKey); err != nil {
		return err
	}
	c.psks = c.psks[:0]
	for i, s := range c.PresharedKeys {
		psk, err := decode(fmt.Sprintf("preshared_keys[%d]", i), s)
		if err != nil {
			return err
		}
		if len(psk) != crypto.PresharedKeySize {
			return fmt.Errorf("%w: preshared_keys[%d] must be %d bytes", ErrInvalidConfig, i, crypto.PresharedKeySize)
		}
		c.psks = append(c.psks, psk)
	}

	pattern, size := c.protocol.Pattern, c.protocol.DH.Size()
	if err := checkKey("local_private_key", c.localPrivate, size, pattern.RequiresLocalStatic(c.role)); err != nil {
		return err
	}
	if err := checkKey("remote_public_key", c.remotePublic, size, pattern.RequiresRemoteStatic(c.role)); err != nil {
		return err
	}
	if n := pattern.NumPSKs(); len(c.psks) != n {
		return fmt.Errorf("%w: %s needs %d pre-shared keys, got %d", ErrInvalidConfig, pattern.Name, n, len(c.psks))
	}
	return nil
}

func decode(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", ErrInvalidConfig, field)
	}
	return b, nil
}

func checkKey(field string, key []byte, size int, required bool) error {
	switch {
	case len(key) == 0 && required:
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	case len(key) != 0 && len(key) != size:
		return fmt.Errorf("%w: %s must be %d bytes", ErrInvalidConfig, field, size)
	}
	return nil
}

// IsInitiator reports whether the config describes the initiating side
func (c *Config) IsInitiator() bool {
	return c.role == crypto.Initiator
}

// Builder returns a crypto.Builder carrying the config's keys
func (c *Config) Builder() (*crypto.Builder, error) {
	if c.protocol == nil {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	b := crypto.NewBuilder(c.protocol).Prologue(c.prologue)
	for _, psk := range c.psks {
		b.PresharedKey(psk)
	}
	if len(c.localPrivate) > 0 {
		b.LocalPrivateKey(c.localPrivate)
	}
	if len(c.remotePublic) > 0 {
		b.RemotePublicKey(c.remotePublic)
	}
	return b, nil
}

// Build returns a Session for the configured role
func (c *Config) Build() (*crypto.Session, error) {
	b, err := c.Builder()
	if err != nil {
		return nil, err
	}
	if c.role == crypto.Initiator {
		return b.BuildInitiator()
	}
	return b.BuildResponder()
}

// Encode writes c as TOML
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
