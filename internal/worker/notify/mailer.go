package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attendance.service/internal/ports/messaging"
	"attendance.service/pkg/telemetry"
)

// Mailer delivers a phase notification to its scope's audience.
type Mailer interface {
	SendPhaseNotice(ctx context.Context, to string, event messaging.PhaseEvent) error
}

// SESMailer sends phase notices via AWS SES.
type SESMailer struct {
	client *ses.Client
	sender string
}

func NewSESMailer(client *ses.Client, sender string) *SESMailer {
	return &SESMailer{client: client, sender: sender}
}

func (s *SESMailer) SendPhaseNotice(ctx context.Context, to string, event messaging.PhaseEvent) error {
	tracer := otel.Tracer("ses-mailer")
	ctx, span := tracer.Start(ctx, "send_phase_notice", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if sessionID := telemetry.GetSessionIDFromContext(ctx); sessionID != "" {
		span.SetAttributes(attribute.String("app.sessionId", sessionID))
	}
	span.SetAttributes(attribute.String("app.phase", string(event.Phase)))

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Location check: %s", event.Phase)),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(event.Message),
				},
			},
		},
	}

	_, err := s.client.SendEmail(ctx, input)
	return err
}
