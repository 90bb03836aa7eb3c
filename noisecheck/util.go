package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Eprintln prints to stderr
func Eprintln(a ...interface{}) {
	fmt.Fprintln(os.Stderr, a...)
}

// Fatalln prints to stderr and exits with status 1
func Fatalln(a ...interface{}) {
	Eprintln(a...)
	os.Exit(1)
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
