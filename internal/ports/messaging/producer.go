package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Producer publishes phase events to the notification queue.
type Producer struct {
	sender         MessageSender
	notifyQueueURL string
}

func NewProducer(sender MessageSender, notifyQueueURL string) *Producer {
	return &Producer{
		sender:         sender,
		notifyQueueURL: notifyQueueURL,
	}
}

// NewSQSProducer creates a Producer backed by AWS SQS.
func NewSQSProducer(client SQSClient, notifyQueueURL string) *Producer {
	return NewProducer(&SQSSender{client: client}, notifyQueueURL)
}

func (p *Producer) NotifyPhase(ctx context.Context, event PhaseEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal phase event: %w", err)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("app.sessionId", event.SessionID),
			attribute.String("app.phase", string(event.Phase)),
		)
	}

	if err := p.sender.SendMessage(ctx, p.notifyQueueURL, b); err != nil {
		return fmt.Errorf("failed to send phase event: %w", err)
	}
	return nil
}
