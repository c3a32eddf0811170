package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/giftgrove/pkg/gifting"
)

const (
	// DefaultExchange carries every gifting event.
	DefaultExchange = "gifting_events"

	routingKeyCardGeneration = "cards.generate"
	routingKeyEmailFormat    = "email.%s.%s"
)

// CardGenerationEvent asks the rendering workers to produce cards for a request.
type CardGenerationEvent struct {
	JobID            string    `json:"job_id"`
	RequestID        string    `json:"request_id"`
	RequestType      string    `json:"request_type"`
	SponsorName      string    `json:"sponsor_name"`
	LogoURL          string    `json:"logo_url"`
	EventName        string    `json:"event_name"`
	PrimaryMessage   string    `json:"primary_message"`
	SecondaryMessage string    `json:"secondary_message"`
	NoOfCards        int       `json:"no_of_cards"`
	Timestamp        time.Time `json:"timestamp"`
}

// EmailEvent asks the mailer to deliver one role's message.
type EmailEvent struct {
	RequestID  string            `json:"request_id"`
	Role       string            `json:"role"`
	Event      string            `json:"event"`
	Template   string            `json:"template"`
	To         []string          `json:"to"`
	CC         []string          `json:"cc,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	IsTestSend bool              `json:"is_test_send"`
	Timestamp  time.Time         `json:"timestamp"`
}

// CardQueue implements gifting.CardQueue on top of a Publisher.
type CardQueue struct {
	publisher Publisher
	exchange  string
	now       func() time.Time
}

// NewCardQueue publishes card generation jobs to exchange.
func NewCardQueue(publisher Publisher, exchange string) *CardQueue {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &CardQueue{publisher: publisher, exchange: exchange, now: time.Now}
}

func (queue *CardQueue) EnqueueCardGeneration(ctx context.Context, job gifting.CardJob, request gifting.GiftCardRequest) error {
	event := CardGenerationEvent{
		JobID:            job.ID,
		RequestID:        request.ID.String(),
		RequestType:      request.RequestType.String(),
		SponsorName:      request.SponsorName,
		LogoURL:          request.LogoURL,
		EventName:        request.EventName,
		PrimaryMessage:   request.PrimaryMessage,
		SecondaryMessage: request.SecondaryMessage,
		NoOfCards:        request.NoOfCards,
		Timestamp:        queue.now().UTC(),
	}
	if err := queue.publisher.Publish(ctx, queue.exchange, routingKeyCardGeneration, event); err != nil {
		return fmt.Errorf("publish card job %s: %w", job.ID, err)
	}
	return nil
}

// EmailSender implements gifting.EmailSender on top of a Publisher.
type EmailSender struct {
	publisher Publisher
	exchange  string
	now       func() time.Time
}

// NewEmailSender publishes one event per role message to exchange.
func NewEmailSender(publisher Publisher, exchange string) *EmailSender {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &EmailSender{publisher: publisher, exchange: exchange, now: time.Now}
}

func (sender *EmailSender) Send(ctx context.Context, message gifting.EmailMessage) error {
	event := EmailEvent{
		RequestID:  message.RequestID.String(),
		Role:       string(message.Role),
		Event:      string(message.Event),
		Template:   message.Template,
		To:         message.To,
		CC:         message.CC,
		Metadata:   message.Metadata,
		IsTestSend: message.IsTestSend,
		Timestamp:  sender.now().UTC(),
	}
	routingKey := fmt.Sprintf(routingKeyEmailFormat, message.Event, message.Role)
	if err := sender.publisher.Publish(ctx, sender.exchange, routingKey, event); err != nil {
		return fmt.Errorf("publish %s email for %s: %w", message.Role, message.RequestID.String(), err)
	}
	return nil
}
