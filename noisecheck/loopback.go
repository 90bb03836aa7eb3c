package main

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/malcolmseyd/noisecore/config"
	"github.com/malcolmseyd/noisecore/crypto"
)

var errRole = errors.New("config has the wrong role")

// loopback runs a complete handshake in memory between the two configs and
// then sends one transport message each way
func loopback(logger logrus.FieldLogger, initiatorPath, responderPath string) error {
	ic, err := config.LoadFile(initiatorPath)
	if err != nil {
		return err
	}
	rc, err := config.LoadFile(responderPath)
	if err != nil {
		return err
	}
	if !ic.IsInitiator() {
		return fmt.Errorf("%s: %w, expected initiator", initiatorPath, errRole)
	}
	if rc.IsInitiator() {
		return fmt.Errorf("%s: %w, expected responder", responderPath, errRole)
	}

	initiator, err := ic.Build()
	if err != nil {
		return fmt.Errorf("building initiator: %w", err)
	}
	defer initiator.Close()
	responder, err := rc.Build()
	if err != nil {
		return fmt.Errorf("building responder: %w", err)
	}
	defer responder.Close()

	oneWay := initiator.Protocol().Pattern.IsOneWay()
	for i := 0; !initiator.IsHandshakeFinished() || !responder.IsHandshakeFinished(); i++ {
		writer, reader := initiator, responder
		if i%2 == 1 && !oneWay {
			writer, reader = responder, initiator
		}
		if err := exchange(writer, reader, nil); err != nil {
			return fmt.Errorf("handshake message %d: %w", i, err)
		}
		logger.WithFields(logrus.Fields{
			"message": i,
			"from":    writer.Role(),
		}).Info("handshake message delivered")
	}

	if err := exchange(initiator, responder, []byte("ping")); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if !oneWay {
		if err := exchange(responder, initiator, []byte("pong")); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
	}

	fields := logrus.Fields{
		"protocol":       initiator.Protocol().String(),
		"handshake_hash": fmt.Sprintf("%x", initiator.HandshakeHash()),
	}
	if rs := responder.RemoteStatic(); len(rs) > 0 {
		fields["initiator_static"] = base64.StdEncoding.EncodeToString(rs)
	}
	if rs := initiator.RemoteStatic(); len(rs) > 0 {
		fields["responder_static"] = base64.StdEncoding.EncodeToString(rs)
	}
	logger.WithFields(fields).Info("handshake complete")
	return nil
}

func exchange(writer, reader *crypto.Session, payload []byte) error {
	msg, err := writer.WriteMessage(payload)
	if err != nil {
		return fmt.Errorf("%s write: %w", writer.Role(), err)
	}
	got, err := reader.ReadMessage(msg)
	if err != nil {
		return fmt.Errorf("%s read: %w", reader.Role(), err)
	}
	if string(got) != string(payload) {
		return fmt.Errorf("%s read a different payload", reader.Role())
	}
	return nil
}
