package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/coursehub/coursehub-core/internal/domain/shared"
)

// Outbox keeps recorded events until the relay marks them delivered.
type Outbox struct {
	s *Store
}

var _ shared.EventRecorder = (*Outbox)(nil)

// Record implements shared.EventRecorder.
func (o *Outbox) Record(ctx context.Context, events ...shared.Event) error {
	if len(events) == 0 {
		return nil
	}
	return o.s.write(ctx, func(d *state) error {
		for _, e := range events {
			d.outbox = append(d.outbox, outboxEntry{event: shared.RecordedEvent{
				ID:     uuid.NewString(),
				Type:   e.EventType(),
				AggID:  e.AggregateID(),
				At:     e.OccurredAt(),
				Values: e.Payload(),
			}})
		}
		return nil
	})
}

// FetchUnrelayed returns up to limit undelivered events in insertion order.
func (o *Outbox) FetchUnrelayed(ctx context.Context, limit int) ([]*shared.RecordedEvent, error) {
	var out []*shared.RecordedEvent
	err := o.s.read(ctx, func(d *state) error {
		for _, entry := range d.outbox {
			if entry.relayed {
				continue
			}
			ev := entry.event
			out = append(out, &ev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// MarkRelayed flags the given events as delivered.
func (o *Outbox) MarkRelayed(ctx context.Context, ids []string) error {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return o.s.write(ctx, func(d *state) error {
		for i := range d.outbox {
			if want[d.outbox[i].event.ID] {
				d.outbox[i].relayed = true
			}
		}
		return nil
	})
}

// Pending returns the number of undelivered events.
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	n := 0
	err := o.s.read(ctx, func(d *state) error {
		for _, entry := range d.outbox {
			if !entry.relayed {
				n++
			}
		}
		return nil
	})
	return n, err
}
