package notify

import (
	"context"
	"encoding/json"

	"example.com/backstage/services/partyup/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MessageReceiver is the subset of the Service Bus receiver used by the processor
type MessageReceiver interface {
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	Close(ctx context.Context) error
}

// Processor drains the notification queue into a delivering Sender
type Processor struct {
	receiver MessageReceiver
	delivery Sender
	batch    int
}

// NewProcessor connects a receiver to the notification queue
func NewProcessor(cfg config.AzureConfig, delivery Sender) (*Processor, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus receiver")
	}

	return NewProcessorWith(receiver, delivery), nil
}

// NewProcessorWith wraps an existing receiver
func NewProcessorWith(receiver MessageReceiver, delivery Sender) *Processor {
	return &Processor{receiver: receiver, delivery: delivery, batch: 10}
}

// Run receives and delivers notifications until ctx is done
func (p *Processor) Run(ctx context.Context) error {
	defer func() {
		if err := p.receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close notification receiver")
		}
	}()

	for {
		messages, err := p.receiver.ReceiveMessages(ctx, p.batch, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to receive notifications")
		}

		for _, message := range messages {
			p.handle(ctx, message)
		}
	}
}

func (p *Processor) handle(ctx context.Context, message *azservicebus.ReceivedMessage) {
	var n Notification
	if err := json.Unmarshal(message.Body, &n); err != nil {
		// A malformed body would never succeed; drop it
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Invalid notification payload")
		if err := p.receiver.CompleteMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Msg("(CompleteMessage) failed")
		}
		return
	}

	if err := p.delivery.Send(ctx, n); err != nil {
		log.Warn().Err(err).Str("message_id", message.MessageID).Msg("Push delivery failed, returning message to the queue")
		if err := p.receiver.AbandonMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Msg("(AbandonMessage) failed")
		}
		return
	}

	if err := p.receiver.CompleteMessage(ctx, message, nil); err != nil {
		log.Error().Err(err).Msg("(CompleteMessage) failed")
	}
}
