// Command noisecheck replays Noise test vectors, generates static keys and
// runs loopback handshakes between two TOML configs.
package main

import (
	"os"

	"github.com/malcolmseyd/noisecore/crypto"
)

func main() {
	cfg := newConfig()
	logger := newLogger(cfg.verbose)
	crypto.SetLogger(logger)

	switch {
	case cfg.keygen != "":
		if err := keygen(os.Stdout, cfg.keygen); err != nil {
			Fatalln("Error generating key:", err)
		}
	case cfg.initiator != "":
		if err := loopback(logger, cfg.initiator, cfg.responder); err != nil {
			Fatalln("Handshake failed:", err)
		}
	default:
		if !runVectors(logger, cfg.files, cfg.filter) {
			os.Exit(1)
		}
	}
}
