package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/events"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt model.DomainEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func TestFanout_DeliversToAll(t *testing.T) {
	evt := model.DomainEvent{Type: model.EventItemPublished, TenantID: "t1"}
	failing, ok := new(MockPublisher), new(MockPublisher)
	failing.On("Publish", mock.Anything, evt).Return(errors.New("broker down"))
	ok.On("Publish", mock.Anything, evt).Return(nil)

	f := events.NewFanout(failing, ok)
	err := f.Publish(context.Background(), evt)

	assert.ErrorContains(t, err, "broker down")
	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestFanout_Empty(t *testing.T) {
	f := events.NewFanout()
	assert.Equal(t, 0, f.Len())
	assert.NoError(t, f.Publish(context.Background(), model.DomainEvent{Type: model.EventItemFailed}))
}
