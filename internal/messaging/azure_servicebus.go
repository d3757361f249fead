package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog/log"
)

// EventDocumentIngested is published after a document lands in the store
const EventDocumentIngested = "document.ingested"

// DocumentEvent is the queue message body announcing an ingested document
type DocumentEvent struct {
	Event         string `json:"event"`
	DocumentType  string `json:"document_type"`
	Identifier    string `json:"identifier"`
	SourcePDFPath string `json:"source_pdf_path,omitempty"`
	IngestedAt    string `json:"ingested_at"`
}

// MessageHandler processes one received queue message
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage, txn *newrelic.Transaction) error

// ServiceBusClient is an interface for Azure Service Bus operations
type ServiceBusClient interface {
	SendMessage(ctx context.Context, body interface{}) error
	ProcessMessages(ctx context.Context, handler MessageHandler) error
	Close() error
}

// azureServiceBus implements the ServiceBusClient interface
type azureServiceBus struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
	tracer    tracing.Tracer
}

// NewAzureServiceBus creates a new Azure Service Bus client. The source tag
// is attached to outgoing messages so consumers can tell producers apart.
func NewAzureServiceBus(cfg config.AzureConfig, source string, tracer tracing.Tracer) (ServiceBusClient, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &azureServiceBus{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
		source:    source,
		tracer:    tracer,
	}, nil
}

// SendMessage sends a message to the Service Bus queue
func (s *azureServiceBus) SendMessage(ctx context.Context, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": s.source,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	return s.sender.SendMessage(ctx, msg, nil)
}

// ProcessMessages receives messages from the queue and dispatches them to the
// handler until the context is cancelled. A handled message is completed; a
// failed one is abandoned and returns to the queue for redelivery.
func (s *azureServiceBus) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to close Service Bus receiver")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to receive messages: %w", err)
		}

		for _, message := range messages {
			txn := s.tracer.StartTransaction("process-queue-message")

			if err := handler(ctx, message, txn); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to process message")
				s.tracer.RecordError(txn, err)
				if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
					log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to abandon message")
				}
				s.tracer.EndTransaction(txn)
				continue
			}

			if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
				s.tracer.RecordError(txn, err)
			}
			s.tracer.EndTransaction(txn)
		}
	}
}

// Close closes the Service Bus client
func (s *azureServiceBus) Close() error {
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	if s.client != nil {
		return s.client.Close(context.Background())
	}

	return nil
}
