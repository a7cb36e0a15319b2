package jsonfile

import (
	"context"
	"path/filepath"

	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// defaultEventCap bounds events.json; the oldest entries are dropped first.
const defaultEventCap = 1000

// eventsDoc is the events.json document shape.
type eventsDoc struct {
	Events []ports.Event `json:"events"`
}

// EventStore persists captured lead events in events.json.
type EventStore struct {
	file *File[eventsDoc]
	cap  int
}

// NewEventStore creates an event store under dir.
func NewEventStore(dir string, log zerolog.Logger) *EventStore {
	return &EventStore{
		file: New(filepath.Join(dir, "events.json"), func() eventsDoc {
			return eventsDoc{Events: []ports.Event{}}
		}, log),
		cap: defaultEventCap,
	}
}

// Append stores an event, trimming to the retention cap.
func (s *EventStore) Append(ctx context.Context, e ports.Event) error {
	return s.file.Update(ctx, func(doc *eventsDoc) error {
		doc.Events = append(doc.Events, e)
		if over := len(doc.Events) - s.cap; over > 0 {
			doc.Events = doc.Events[over:]
		}
		return nil
	})
}

// Recent returns up to limit events, newest first.
func (s *EventStore) Recent(ctx context.Context, limit int) ([]ports.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	n := len(doc.Events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ports.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, doc.Events[i])
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.EventStore = (*EventStore)(nil)
