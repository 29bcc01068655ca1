package pubsub_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/pubsub"
)

func TestNewEventPublisher(t *testing.T) {
	// The Pub/Sub client itself cannot be exercised without the emulator
	publisher := pubsub.NewEventPublisher(nil, "growth-events")
	assert.NotNil(t, publisher)
}

func TestMessage(t *testing.T) {
	evt := model.DomainEvent{
		Type:       model.EventItemPublished,
		TenantID:   "t1",
		Platform:   model.PlatformTwitter,
		ItemID:     "item-1",
		ExternalID: "99",
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	msg, err := pubsub.Message(evt)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"type": "item.published", "tenant_id": "t1", "platform": "twitter"}, msg.Attributes)

	var decoded model.DomainEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestMessage_OmitsEmptyPlatform(t *testing.T) {
	msg, err := pubsub.Message(model.DomainEvent{Type: model.EventCampaignOptimized, TenantID: "t1"})
	require.NoError(t, err)
	assert.NotContains(t, msg.Attributes, "platform")
}
