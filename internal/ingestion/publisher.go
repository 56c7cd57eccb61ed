package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes applied operations to NATS for downstream
// consumers. Subjects follow the pattern lend.applied.{op_type}.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan AppliedNotice
	log       zerolog.Logger
}

// AppliedNotice is a committed operation ready for outbound publishing.
type AppliedNotice struct {
	Sequence  int64       `json:"sequence"`
	OpType    string      `json:"op_type"`
	RequestID string      `json:"request_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan AppliedNotice, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run starts the outbound publisher loop.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notice, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, notice); err != nil {
				// Non-fatal: downstream consumers can read the
				// operation log from Postgres directly.
				p.log.Warn().
					Int64("sequence", notice.Sequence).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, notice AppliedNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	subject := fmt.Sprintf("lend.applied.%s", notice.OpType)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the applied-operations stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_APPLIED",
		Subjects:  []string{"lend.applied.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Info().Str("stream", "LEND_APPLIED").Msg("ensured outbound stream")
	return nil
}
