package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to the operation and price subjects and feeds raw
// messages into the single-threaded engine loop via requestChan.
type NATSSubscriber struct {
	js          jetstream.JetStream
	requestChan chan<- RawRequest
	consumers   []jetstream.ConsumeContext
	log         zerolog.Logger
}

// RawRequest is a received-but-unparsed message, ready for the shell to
// validate and convert into a typed op.Request before handing to the engine.
type RawRequest struct {
	Subject  string
	OpKind   string
	Data     []byte
	Received time.Time
	AckFunc  func() // ACK after the engine has accepted or rejected the request
	NakFunc  func() // NAK on infrastructure failure, message will be redelivered
}

// SubjectConfig maps one NATS subject to an operation kind.
type SubjectConfig struct {
	Subject      string
	OpKind       string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects is the standard subject layout: one subject per operation
// so producers can be scaled and permissioned independently, plus the price
// feed subjects.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "lend.ops.bank.init", OpKind: "InitBank", ConsumerName: "lend-bank-init", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.user.init", OpKind: "InitUser", ConsumerName: "lend-user-init", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.deposit", OpKind: "Deposit", ConsumerName: "lend-deposit", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.withdraw", OpKind: "Withdraw", ConsumerName: "lend-withdraw", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.borrow", OpKind: "Borrow", ConsumerName: "lend-borrow", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.repay", OpKind: "Repay", ConsumerName: "lend-repay", StreamName: "LEND_OPS"},
		{Subject: "lend.ops.liquidate", OpKind: "Liquidate", ConsumerName: "lend-liquidate", StreamName: "LEND_OPS"},
		{Subject: "lend.prices.>", OpKind: "PriceUpdate", ConsumerName: "lend-prices", StreamName: "LEND_PRICES"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, requestChan chan<- RawRequest, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		requestChan: requestChan,
		log:         log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawRequest{
				Subject:  msg.Subject(),
				OpKind:   cfg.OpKind,
				Data:     msg.Data(),
				Received: time.Now(),
				AckFunc:  func() { msg.Ack() },
				NakFunc:  func() { msg.Nak() },
			}

			select {
			case ns.requestChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "LEND_OPS",
			Subjects:  []string{"lend.ops.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "LEND_PRICES",
			Subjects:  []string{"lend.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
