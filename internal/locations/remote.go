package locations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/db"
	"gorm.io/gorm/clause"
)

// ErrRemoteUnavailable marks a transient remote-store failure. Recovered
// by retry (writes) or by the local fallback (reads); never fatal.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// RemoteStore is the employer-side document store for samples. BatchWrite
// must be idempotent by sample id: the buffer delivers at-least-once.
type RemoteStore interface {
	Put(ctx context.Context, s Sample) error
	BatchWrite(ctx context.Context, batch []Sample) error
	Query(ctx context.Context, subjectID string, from, to *time.Time, limit int) ([]Sample, error)
	LatestPerSubject(ctx context.Context, ownerID string) ([]Sample, error)
	DeleteOlderThan(ctx context.Context, subjectID string, cutoff time.Time) (int64, error)
}

// GormStore implements RemoteStore against the shared Postgres handle.
type GormStore struct{}

func (GormStore) Put(ctx context.Context, s Sample) error {
	err := db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&s).Error
	if err != nil {
		return fmt.Errorf("%w: put sample %s: %v", ErrRemoteUnavailable, s.ID, err)
	}
	return nil
}

// BatchWrite inserts the batch in one statement; duplicate ids are
// skipped, so retried batches land exactly once.
func (GormStore) BatchWrite(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}
	err := db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&batch).Error
	if err != nil {
		return fmt.Errorf("%w: batch write %d samples: %v", ErrRemoteUnavailable, len(batch), err)
	}
	return nil
}

func (GormStore) Query(ctx context.Context, subjectID string, from, to *time.Time, limit int) ([]Sample, error) {
	q := db.DB.WithContext(ctx).Where("subject_id = ?", subjectID)
	if from != nil {
		q = q.Where("captured_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("captured_at <= ?", *to)
	}

	var samples []Sample
	err := q.Order("captured_at DESC").Limit(limit).Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query samples: %v", ErrRemoteUnavailable, err)
	}
	return samples, nil
}

// LatestPerSubject feeds the admin live-position view: the newest sample
// for every subject of an employer.
func (GormStore) LatestPerSubject(ctx context.Context, ownerID string) ([]Sample, error) {
	var samples []Sample
	err := db.DB.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (subject_id) *
		FROM locations.samples
		WHERE owner_id = ?
		ORDER BY subject_id, captured_at DESC
	`, ownerID).Scan(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("%w: latest per subject: %v", ErrRemoteUnavailable, err)
	}
	return samples, nil
}

// DeleteOlderThan removes samples captured before cutoff. An empty
// subjectID sweeps every subject; the retention job runs it that way.
func (GormStore) DeleteOlderThan(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	q := db.DB.WithContext(ctx).Where("captured_at < ?", cutoff)
	if subjectID != "" {
		q = q.Where("subject_id = ?", subjectID)
	}
	res := q.Delete(&Sample{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: delete old samples: %v", ErrRemoteUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
