package kafka

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"HNPulse/internal/config"
)

const dialTimeout = 10 * time.Second

func mechanism(cfg config.KafkaConfig) (sasl.Mechanism, error) {
	if !cfg.UsesSASL() {
		return nil, nil
	}
	switch strings.ToUpper(cfg.SASLMechanism) {
	case "", "PLAIN":
		return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", cfg.SASLMechanism)
	}
}

func tlsConfig(cfg config.KafkaConfig) *tls.Config {
	if !cfg.UsesTLS() {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func newTransport(cfg config.KafkaConfig) (*kafkago.Transport, error) {
	mech, err := mechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafkago.Transport{
		DialTimeout: dialTimeout,
		SASL:        mech,
		TLS:         tlsConfig(cfg),
	}, nil
}

func newDialer(cfg config.KafkaConfig) (*kafkago.Dialer, error) {
	mech, err := mechanism(cfg)
	if err != nil {
		return nil, err
	}
	return &kafkago.Dialer{
		Timeout:       dialTimeout,
		DualStack:     true,
		SASLMechanism: mech,
		TLS:           tlsConfig(cfg),
	}, nil
}
