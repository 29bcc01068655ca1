package servicebus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

// EventPublisher sends domain events to an Azure Service Bus topic or queue.
type EventPublisher struct {
	AzservicebusClient *azservicebus.Client
	topic              string

	mu     sync.Mutex
	sender *azservicebus.Sender
}

func NewEventPublisher(azServiceBusClient *azservicebus.Client, topic string) *EventPublisher {
	return &EventPublisher{AzservicebusClient: azServiceBusClient, topic: topic}
}

// NewClient connects to a namespace with the default Azure credential chain.
func NewClient(namespace string) (*azservicebus.Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(namespace, cred, nil)
}

// Message builds the Service Bus message for an event.
func Message(evt model.DomainEvent) (*azservicebus.Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	contentType := "application/json"
	subject := evt.Type
	props := map[string]any{"tenant_id": evt.TenantID}
	if evt.Platform != "" {
		props["platform"] = string(evt.Platform)
	}
	return &azservicebus.Message{
		Body:                  body,
		ContentType:           &contentType,
		Subject:               &subject,
		ApplicationProperties: props,
	}, nil
}

func (p *EventPublisher) getSender() (*azservicebus.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sender != nil {
		return p.sender, nil
	}
	sender, err := p.AzservicebusClient.NewSender(p.topic, nil)
	if err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while making new sender service bus.")
		return nil, err
	}
	p.sender = sender
	return sender, nil
}

func (p *EventPublisher) Publish(ctx context.Context, evt model.DomainEvent) error {
	msg, err := Message(evt)
	if err != nil {
		return err
	}
	sender, err := p.getSender()
	if err != nil {
		return err
	}
	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while sending message.")
		return err
	}
	return nil
}

func (p *EventPublisher) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sender == nil {
		return
	}
	if err := p.sender.Close(ctx); err != nil {
		logger.GetLogger().
			WithField("error", err).
			Error("Error while closing sender.")
	}
	p.sender = nil
}

var _ repository.IEventPublisher = (*EventPublisher)(nil)
