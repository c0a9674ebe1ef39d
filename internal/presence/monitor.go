// Package presence turns a live sample feed into attendance transitions:
// crossing into a work zone checks the subject in, crossing out checks
// them out. Loitering inside or outside produces nothing.
package presence

import (
	"context"
	"log"

	"github.com/GeoPunch/GP-Backend/internal/attendance"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/locations"
)

// Recorder is the attendance side of the monitor. *attendance.Engine
// satisfies it.
type Recorder interface {
	AutoCheckIn(subjectID, ownerID, zoneID string) *attendance.Record
	AutoCheckOut(subjectID, zoneID string) *attendance.Record
}

// Ingester is the sample sink. *locations.Buffer satisfies it.
type Ingester interface {
	Ingest(s locations.Sample) error
}

// ZoneLookup fetches the active zones to judge a position against.
// geofence.ActiveForOwner in production.
type ZoneLookup func(ownerID string) ([]geofence.Geofence, error)

// Monitor tracks one subject's zone membership off their sample feed.
type Monitor struct {
	subjectID string
	ownerID   string

	source    locations.Source
	sourceCfg locations.SourceConfig
	ingest    Ingester
	recorder  Recorder
	zones     ZoneLookup

	inside bool
	zoneID string
}

func NewMonitor(subjectID, ownerID string, source locations.Source, sourceCfg locations.SourceConfig, ingest Ingester, recorder Recorder, zones ZoneLookup) *Monitor {
	return &Monitor{
		subjectID: subjectID,
		ownerID:   ownerID,
		source:    source,
		sourceCfg: sourceCfg,
		ingest:    ingest,
		recorder:  recorder,
		zones:     zones,
	}
}

// Run consumes the feed until ctx is cancelled or the source closes its
// channels. Each sample is buffered for delivery and judged against the
// current zone set; only membership edges touch attendance.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.source.Start(ctx, m.sourceCfg); err != nil {
		return err
	}
	defer m.source.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s, ok := <-m.source.Samples():
			if !ok {
				return locations.ErrSourceGone
			}
			m.handle(s)

		case err, ok := <-m.source.Errors():
			if !ok {
				return locations.ErrSourceGone
			}
			log.Printf("[presence] feed error for %s: %v", m.subjectID, err)
		}
	}
}

func (m *Monitor) handle(s locations.Sample) {
	if err := m.ingest.Ingest(s); err != nil {
		log.Printf("[presence] ingest %s: %v", s.ID, err)
	}

	zones, err := m.zones(m.ownerID)
	if err != nil {
		// Membership is unknowable without zones; keep the last known
		// state rather than fabricating an exit.
		log.Printf("[presence] zone lookup for %s: %v", m.subjectID, err)
		return
	}

	membership := geofence.Evaluate(s.Coordinate(), zones)
	switch {
	case membership.IsInside && !m.inside:
		m.inside = true
		m.zoneID = membership.Geofence.ID
		m.recorder.AutoCheckIn(m.subjectID, m.ownerID, m.zoneID)

	case !membership.IsInside && m.inside:
		m.recorder.AutoCheckOut(m.subjectID, m.zoneID)
		m.inside = false
		m.zoneID = ""

	case membership.IsInside:
		// Still inside; track zone drift without re-firing check-in.
		m.zoneID = membership.Geofence.ID
	}
}

// Inside reports the last observed membership state.
func (m *Monitor) Inside() bool {
	return m.inside
}

// Stop halts the feed and pushes anything still buffered, bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	if err := m.source.Stop(); err != nil {
		return err
	}
	if f, ok := m.ingest.(interface{ Flush(context.Context) error }); ok {
		return f.Flush(ctx)
	}
	return nil
}
