package jsonfile

import (
	"context"
	"path/filepath"

	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// quotasDoc is the quotas.json document shape.
type quotasDoc struct {
	QuotasByUserID map[string]quota.Record `json:"quotasByUserId"`
}

// QuotaStore persists per-user quota counters in quotas.json.
type QuotaStore struct {
	file  *File[quotasDoc]
	clock ports.Clock
}

// NewQuotaStore creates a quota store under dir.
func NewQuotaStore(dir string, clk ports.Clock, log zerolog.Logger) *QuotaStore {
	return &QuotaStore{
		file: New(filepath.Join(dir, "quotas.json"), func() quotasDoc {
			return quotasDoc{QuotasByUserID: map[string]quota.Record{}}
		}, log),
		clock: clk,
	}
}

// RecordHit checks and increments the user's counter for kind under the
// file's write lock. Two concurrent hits at count == limit-1 cannot both
// pass: the second one reads the first one's persisted increment.
func (s *QuotaStore) RecordHit(ctx context.Context, userID string, kind quota.Kind, limit int) (quota.Decision, error) {
	var decision quota.Decision
	err := s.file.Update(ctx, func(doc *quotasDoc) error {
		if doc.QuotasByUserID == nil {
			doc.QuotasByUserID = map[string]quota.Record{}
		}

		var rec quota.Record
		decision, rec = quota.Apply(doc.QuotasByUserID[userID], kind, limit, s.clock.Now())
		if !decision.Allowed {
			// Rejection must not mutate the stored count.
			return ErrNoChange
		}
		doc.QuotasByUserID[userID] = rec
		return nil
	})
	if err != nil {
		return quota.Decision{}, err
	}
	return decision, nil
}

// Count returns the stored counter for the current period.
func (s *QuotaStore) Count(ctx context.Context, userID string, kind quota.Kind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc, err := s.file.Read()
	if err != nil {
		return 0, err
	}
	return quota.Count(doc.QuotasByUserID[userID], kind, s.clock.Now()), nil
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
