package jsonfile

import (
	"context"
	"path/filepath"

	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// defaultMessageCap bounds messages.json; the oldest entries are dropped first.
const defaultMessageCap = 2000

// messagesDoc is the messages.json document shape.
type messagesDoc struct {
	Messages []ports.Message `json:"messages"`
}

// MessageStore persists chat transcripts in messages.json.
type MessageStore struct {
	file *File[messagesDoc]
	cap  int
}

// NewMessageStore creates a message store under dir.
func NewMessageStore(dir string, log zerolog.Logger) *MessageStore {
	return &MessageStore{
		file: New(filepath.Join(dir, "messages.json"), func() messagesDoc {
			return messagesDoc{Messages: []ports.Message{}}
		}, log),
		cap: defaultMessageCap,
	}
}

// Append stores a message, trimming to the retention cap.
func (s *MessageStore) Append(ctx context.Context, m ports.Message) error {
	return s.file.Update(ctx, func(doc *messagesDoc) error {
		doc.Messages = append(doc.Messages, m)
		if over := len(doc.Messages) - s.cap; over > 0 {
			doc.Messages = doc.Messages[over:]
		}
		return nil
	})
}

// BySession returns up to limit messages for one session, oldest first.
func (s *MessageStore) BySession(ctx context.Context, sessionID string, limit int) ([]ports.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	var out []ports.Message
	for _, m := range doc.Messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Ensure interface compliance.
var _ ports.MessageStore = (*MessageStore)(nil)
