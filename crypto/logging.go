package crypto

import (
	"github.com/sirupsen/logrus"
)

// log never receives key material. Failed decryption and DH are only
// logged with the message index.
var log = logrus.WithField("package", "crypto")

// SetLogger replaces the logger used for handshake tracing
func SetLogger(l *logrus.Logger) {
	log = l.WithField("package", "crypto")
}

func (h *HandshakeState) logger() *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"protocol": h.protocol.String(),
		"role":     h.role.String(),
		"message":  h.msgIndex,
	})
}
