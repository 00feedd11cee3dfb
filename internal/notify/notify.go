package notify

import (
	"context"
	"encoding/json"
	"time"

	"example.com/backstage/services/partyup/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Notification is one push message addressed to a device token
type Notification struct {
	Token    string            `json:"token"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	ImageURL string            `json:"image_url,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Sender delivers push notifications. Delivery is best-effort: callers log
// failures and never fail the surrounding operation on them.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// NoopSender drops every notification
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, n Notification) error {
	log.Debug().Str("title", n.Title).Msg("Push notifications disabled, dropping notification")
	return nil
}

// MessageSender is the subset of the Service Bus sender used to enqueue notifications
type MessageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// QueueSender enqueues notifications on Azure Service Bus; the worker delivers them
type QueueSender struct {
	client *azservicebus.Client
	sender MessageSender
	source string
}

// NewQueueSender connects to the notification queue
func NewQueueSender(cfg config.AzureConfig, source string) (*QueueSender, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &QueueSender{client: client, sender: sender, source: source}, nil
}

// NewQueueSenderWith wraps an existing sender
func NewQueueSenderWith(sender MessageSender, source string) *QueueSender {
	return &QueueSender{sender: sender, source: source}
}

// Send enqueues n
func (q *QueueSender) Send(ctx context.Context, n Notification) error {
	if n.Token == "" {
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification")
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": q.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := q.sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "failed to enqueue notification")
	}
	return nil
}

// Close closes the sender and client
func (q *QueueSender) Close() error {
	if q.sender != nil {
		if err := q.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if q.client != nil {
		return q.client.Close(context.Background())
	}
	return nil
}
