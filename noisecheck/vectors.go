package main

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/malcolmseyd/noisecore/vectors"
)

// runVectors replays every vector file and reports whether none failed.
// Protocols the engine doesn't support are skipped.
func runVectors(logger logrus.FieldLogger, files []string, filter string) bool {
	var total vectors.Summary
	ok := true
	for _, path := range files {
		f, err := vectors.LoadFile(path)
		if err != nil {
			logger.WithError(err).WithField("file", path).Error("can't load vectors")
			ok = false
			continue
		}
		s := vectors.Run(f, filter, func(v *vectors.Vector, err error) {
			entry := logger.WithFields(logrus.Fields{
				"file":     path,
				"protocol": v.Protocol(),
			})
			switch {
			case err == nil:
				entry.Debug("pass")
			case errors.Is(err, vectors.ErrUnsupported):
				entry.Debug("skipped")
			default:
				entry.WithError(err).Error("fail")
			}
		})
		total.Passed += s.Passed
		total.Failed += s.Failed
		total.Ignored += s.Ignored
	}

	logger.WithFields(logrus.Fields{
		"passed":  total.Passed,
		"failed":  total.Failed,
		"ignored": total.Ignored,
	}).Info("vectors done")
	return ok && total.Failed == 0
}
