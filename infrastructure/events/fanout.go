package events

import (
	"context"
	"errors"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

// Fanout delivers every event to all configured publishers. A failing sink does not
// stop delivery to the others.
type Fanout struct {
	sinks []repository.IEventPublisher
}

func NewFanout(sinks ...repository.IEventPublisher) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Add(sink repository.IEventPublisher) {
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, evt model.DomainEvent) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, evt); err != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"type":  evt.Type,
				"error": err,
			}).Warn("Event delivery failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ repository.IEventPublisher = (*Fanout)(nil)
