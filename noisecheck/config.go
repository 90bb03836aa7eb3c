package main

import (
	"os"

	"github.com/ogier/pflag"
)

// Config stores the command line options
type Config struct {
	verbose bool
	filter  string

	keygen string

	initiator string
	responder string

	files []string
}

func newConfig() Config {
	config := Config{}

	pflag.Usage = printUsage

	verbose := pflag.BoolP("verbose", "v", false, "log every handshake step")
	filter := pflag.StringP("filter", "f", "", "only run vectors whose protocol name contains this string")
	keygen := pflag.StringP("keygen", "k", "", "print a new static key pair for the DH function (25519 or 448)")
	initiator := pflag.StringP("initiator", "i", "", "initiator config for a loopback handshake")
	responder := pflag.StringP("responder", "r", "", "responder config for a loopback handshake")
	help := pflag.BoolP("help", "h", false, "show this message")

	pflag.Parse()
	if *help {
		printUsage()
		os.Exit(0)
	}

	config.verbose = *verbose
	config.filter = *filter
	config.keygen = *keygen
	config.initiator = *initiator
	config.responder = *responder
	config.files = pflag.Args()

	if (config.initiator == "") != (config.responder == "") {
		Eprintln("--initiator and --responder must be given together")
		os.Exit(1)
	}
	if config.keygen == "" && config.initiator == "" && len(config.files) == 0 {
		Eprintln("Too few arguments")
		printUsage()
		os.Exit(1)
	}

	return config
}

func printUsage() {
	Eprintln("Usage: " + os.Args[0] + " [OPTION]... VECTOR_FILE...")
	Eprintln("       " + os.Args[0] + " --keygen DH")
	Eprintln("       " + os.Args[0] + " --initiator CONFIG --responder CONFIG")
	Eprintln("Flags:")
	pflag.PrintDefaults()
	Eprintln("Example:")
	Eprintln("    " + os.Args[0] + " -f psk cacophony.txt snow.txt")
}
