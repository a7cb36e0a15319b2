package jsonfile

import (
	"context"
	"path/filepath"

	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// prefsDoc is the prefs.json document shape.
type prefsDoc struct {
	PrefsByUserID map[string]map[string]string `json:"prefsByUserId"`
}

// PrefStore persists per-user preferences in prefs.json.
type PrefStore struct {
	file *File[prefsDoc]
}

// NewPrefStore creates a preference store under dir.
func NewPrefStore(dir string, log zerolog.Logger) *PrefStore {
	return &PrefStore{
		file: New(filepath.Join(dir, "prefs.json"), func() prefsDoc {
			return prefsDoc{PrefsByUserID: map[string]map[string]string{}}
		}, log),
	}
}

// Get returns the user's preference map (empty when none stored).
func (s *PrefStore) Get(ctx context.Context, userID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return nil, err
	}
	prefs := make(map[string]string, len(doc.PrefsByUserID[userID]))
	for k, v := range doc.PrefsByUserID[userID] {
		prefs[k] = v
	}
	return prefs, nil
}

// Set stores one preference value.
func (s *PrefStore) Set(ctx context.Context, userID, key, value string) error {
	return s.file.Update(ctx, func(doc *prefsDoc) error {
		if doc.PrefsByUserID == nil {
			doc.PrefsByUserID = map[string]map[string]string{}
		}
		if doc.PrefsByUserID[userID] == nil {
			doc.PrefsByUserID[userID] = map[string]string{}
		}
		doc.PrefsByUserID[userID][key] = value
		return nil
	})
}

// Ensure interface compliance.
var _ ports.PrefStore = (*PrefStore)(nil)
