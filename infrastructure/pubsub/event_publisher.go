package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

// EventPublisher sends domain events to a Google Pub/Sub topic.
type EventPublisher struct {
	PubSubClient *pubsub.Client
	topicName    string

	mu    sync.Mutex
	topic *pubsub.Topic
}

func NewEventPublisher(pubSubClient *pubsub.Client, topicName string) *EventPublisher {
	return &EventPublisher{PubSubClient: pubSubClient, topicName: topicName}
}

// Message builds the Pub/Sub message for an event. Subscribers filter on the attributes.
func Message(evt model.DomainEvent) (*pubsub.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{"type": evt.Type, "tenant_id": evt.TenantID}
	if evt.Platform != "" {
		attrs["platform"] = string(evt.Platform)
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}

// ensureTopic resolves the topic on first use, creating it when it does not exist.
func (p *EventPublisher) ensureTopic(ctx context.Context) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	topic := p.PubSubClient.Topic(p.topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.GetLogger().WithField("topic", p.topicName).Info("Topic doesn't exist - creating it")
		if topic, err = p.PubSubClient.CreateTopic(ctx, p.topicName); err != nil {
			return nil, err
		}
	}
	p.topic = topic
	return topic, nil
}

func (p *EventPublisher) Publish(ctx context.Context, evt model.DomainEvent) error {
	msg, err := Message(evt)
	if err != nil {
		return err
	}
	topic, err := p.ensureTopic(ctx)
	if err != nil {
		return err
	}
	serverID, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return err
	}
	logger.GetLogger().WithFields(map[string]interface{}{"server_id": serverID, "type": evt.Type}).Debug("Event published")
	return nil
}

// Stop flushes pending messages.
func (p *EventPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
	}
}

var _ repository.IEventPublisher = (*EventPublisher)(nil)
