package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/sudo-init-do/servicehub/internal/marketplace"
)

// Fanout delivers every event to all sinks. One failing sink does not stop the others.
type Fanout []marketplace.EventSink

func (f Fanout) Publish(ctx context.Context, evt marketplace.Event) error {
	var errs []error
	for i, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
