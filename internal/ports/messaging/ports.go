package messaging

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Notifier is the output port for phase notifications. Delivery is
// fire-and-forget from the scheduler's point of view; failures are logged
// by the caller and never abort a firing.
type Notifier interface {
	NotifyPhase(ctx context.Context, event PhaseEvent) error
}

// MessageSender sends raw messages to a messaging system.
type MessageSender interface {
	SendMessage(ctx context.Context, destination string, body []byte) error
}

// SQSClient is the subset of the AWS SQS client the producer needs.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}
