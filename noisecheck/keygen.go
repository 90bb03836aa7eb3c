package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/malcolmseyd/noisecore/config"
	"github.com/malcolmseyd/noisecore/crypto"
)

// keygen writes a config template holding a fresh static key, with the
// public key as a comment
func keygen(w io.Writer, dhName string) error {
	dh := crypto.DHByName(dhName)
	if dh == nil {
		return fmt.Errorf("unsupported DH function %q", dhName)
	}
	kp, err := dh.GenerateKeypair(rand.Reader)
	if err != nil {
		return err
	}
	defer kp.Clear()

	fmt.Fprintln(w, "# public key:", base64.StdEncoding.EncodeToString(kp.Public))
	cfg := config.Config{
		Protocol:        "Noise_XX_" + dh.String() + "_ChaChaPoly_BLAKE2s",
		Role:            "initiator",
		LocalPrivateKey: base64.StdEncoding.EncodeToString(kp.Private),
	}
	return cfg.Encode(w)
}
