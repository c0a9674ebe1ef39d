package locations

import (
	"encoding/json"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/geo"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
)

// Sample is one timestamped position reading for a subject. Immutable once
// captured; only the buffer flips its synced status, and only in the local
// store — a row that reaches the remote table is synced by definition.
type Sample struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	SubjectID      string    `gorm:"index:idx_samples_subject_time;not null" json:"subject_id"`
	OwnerID        string    `gorm:"index" json:"owner_id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	AltitudeMeters *float64  `json:"altitude_meters,omitempty"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	CapturedAt     time.Time `gorm:"index:idx_samples_subject_time" json:"captured_at"`
}

func (Sample) TableName() string {
	return "locations.samples"
}

func (s Sample) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// rowFromSample flattens a sample into the local store's field-map shape.
func rowFromSample(s Sample) (localstore.SampleRow, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return localstore.SampleRow{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return localstore.SampleRow{}, err
	}
	return localstore.SampleRow{
		ID:         s.ID,
		SubjectID:  s.SubjectID,
		CapturedAt: s.CapturedAt,
		Fields:     fields,
	}, nil
}

func sampleFromRow(row localstore.SampleRow) (Sample, error) {
	data, err := json.Marshal(row.Fields)
	if err != nil {
		return Sample{}, err
	}
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, err
	}
	return s, nil
}
