package attendance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
	"gorm.io/gorm/clause"
)

// RecordStore is the durable source of truth for daily records. The
// local store satisfies it in production; tests use an in-memory fake.
type RecordStore interface {
	Get(id string) (*Record, error)
	FindBySubjectDate(subjectID, date string) (*Record, error)
	Save(rec *Record) error
	MarkSynced(id string) error
}

// RemoteWriter mirrors records to the employer backend. Best effort: a
// failed mirror leaves the record unsynced locally, never blocks the
// transition.
type RemoteWriter interface {
	Upsert(ctx context.Context, rec Record) error
}

// LocalRecordStore adapts the on-device store to RecordStore by flattening
// records into its field-map shape.
type LocalRecordStore struct {
	store *localstore.Store
}

func NewLocalRecordStore(store *localstore.Store) *LocalRecordStore {
	return &LocalRecordStore{store: store}
}

func recordToRow(rec Record, synced bool) (localstore.RecordRow, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return localstore.RecordRow{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return localstore.RecordRow{}, err
	}
	return localstore.RecordRow{
		ID:        rec.ID,
		SubjectID: rec.SubjectID,
		Date:      rec.Date,
		Fields:    fields,
		Synced:    synced,
	}, nil
}

func recordFromRow(row *localstore.RecordRow) (*Record, error) {
	if row == nil {
		return nil, nil
	}
	data, err := json.Marshal(row.Fields)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", row.ID, err)
	}
	return &rec, nil
}

func (s *LocalRecordStore) Get(id string) (*Record, error) {
	row, err := s.store.GetRecord(id)
	if err != nil {
		return nil, err
	}
	return recordFromRow(row)
}

func (s *LocalRecordStore) FindBySubjectDate(subjectID, date string) (*Record, error) {
	row, err := s.store.RecordBySubjectDate(subjectID, date)
	if err != nil {
		return nil, err
	}
	return recordFromRow(row)
}

// Save persists the record and resets its synced flag: any change needs
// to reach the remote again.
func (s *LocalRecordStore) Save(rec *Record) error {
	row, err := recordToRow(*rec, false)
	if err != nil {
		return err
	}
	return s.store.PutRecord(row)
}

func (s *LocalRecordStore) MarkSynced(id string) error {
	return s.store.MarkRecordSynced(id)
}

// GormRemote is the Postgres mirror for records.
type GormRemote struct{}

func (GormRemote) Upsert(ctx context.Context, rec Record) error {
	return db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
}
