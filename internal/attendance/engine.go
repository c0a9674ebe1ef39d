package attendance

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/utils"
)

// Config carries the company clock rules the engine judges against.
// Now is swappable for tests; nil means time.Now.
type Config struct {
	LateHour   int
	LateMinute int
	Location   *time.Location
	Now        func() time.Time
}

const lockStripes = 64

// Engine owns the daily attendance state machine. Every transition for a
// given subject and date runs under one lock, so a burst of check-in
// requests resolves to exactly one winner. The locks are striped by key
// hash, so memory stays flat however many subjects and days pass through.
type Engine struct {
	cfg    Config
	store  RecordStore
	remote RemoteWriter

	locks [lockStripes]sync.Mutex

	// DroppedAutoEvents counts automatic transitions that failed and were
	// discarded. Auto events never surface errors to anyone.
	DroppedAutoEvents atomic.Int64
}

func NewEngine(cfg Config, store RecordStore, remote RemoteWriter) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		remote: remote,
	}
}

func (e *Engine) lockFor(subjectID, date string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(subjectID))
	h.Write([]byte{'|'})
	h.Write([]byte(date))
	return &e.locks[h.Sum32()%lockStripes]
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().In(e.cfg.Location)
}

// DateOf keys a moment to its attendance day in the company timezone.
func (e *Engine) DateOf(t time.Time) string {
	return t.In(e.cfg.Location).Format("2006-01-02")
}

// IsLate reports whether a check-in moment is past the company cutoff.
func (e *Engine) IsLate(at time.Time) bool {
	local := at.In(e.cfg.Location)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(),
		e.cfg.LateHour, e.cfg.LateMinute, 0, 0, e.cfg.Location)
	return local.After(cutoff)
}

type CheckInInput struct {
	SubjectID      string
	OwnerID        string
	Method         Method
	ZoneID         string
	InsideGeofence bool
	ProofRef       string
}

// CheckIn opens the subject's day. A day already opened (or already
// closed) rejects with ErrAlreadyCheckedIn; yesterday's open record
// never blocks today.
func (e *Engine) CheckIn(in CheckInInput) (*Record, error) {
	now := e.now()
	date := e.DateOf(now)

	l := e.lockFor(in.SubjectID, date)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.FindBySubjectDate(in.SubjectID, date)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.State != StateNotStarted {
		return nil, ErrAlreadyCheckedIn
	}
	if rec == nil {
		rec = &Record{
			ID:        utils.GenerateUUID(),
			SubjectID: in.SubjectID,
			OwnerID:   in.OwnerID,
			Date:      date,
			CreatedAt: now,
		}
	}

	at := now
	rec.State = StateCheckedIn
	rec.CheckInAt = &at
	rec.CheckInMethod = in.Method
	rec.CheckInZoneID = in.ZoneID
	rec.InsideGeofenceAtCheckIn = in.InsideGeofence
	rec.ProofRef = in.ProofRef
	rec.IsLate = e.IsLate(at)
	rec.UpdatedAt = now

	if err := e.store.Save(rec); err != nil {
		return nil, err
	}
	e.syncRemote(*rec)
	return rec, nil
}

type CheckOutInput struct {
	SubjectID string
	Method    Method
	ZoneID    string
}

// CheckOut closes an open day. Without an open check-in it rejects with
// ErrNotCheckedIn.
func (e *Engine) CheckOut(in CheckOutInput) (*Record, error) {
	now := e.now()
	date := e.DateOf(now)

	l := e.lockFor(in.SubjectID, date)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.FindBySubjectDate(in.SubjectID, date)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.State != StateCheckedIn {
		return nil, ErrNotCheckedIn
	}

	at := now
	rec.State = StateCheckedOut
	rec.CheckOutAt = &at
	rec.CheckOutMethod = in.Method
	rec.CheckOutZoneID = in.ZoneID
	rec.UpdatedAt = now

	if err := e.store.Save(rec); err != nil {
		return nil, err
	}
	e.syncRemote(*rec)
	return rec, nil
}

// AutoCheckIn is the geofence-entry transition. Failures (already
// checked in, store down) are swallowed: nil return, nothing owed to
// the caller.
func (e *Engine) AutoCheckIn(subjectID, ownerID, zoneID string) *Record {
	rec, err := e.CheckIn(CheckInInput{
		SubjectID:      subjectID,
		OwnerID:        ownerID,
		Method:         MethodAuto,
		ZoneID:         zoneID,
		InsideGeofence: true,
	})
	if err != nil {
		if err != ErrAlreadyCheckedIn {
			e.DroppedAutoEvents.Add(1)
			log.Printf("[attendance] auto check-in dropped for %s: %v", subjectID, err)
		}
		return nil
	}
	return rec
}

// AutoCheckOut is the geofence-exit transition, same silent contract.
func (e *Engine) AutoCheckOut(subjectID, zoneID string) *Record {
	rec, err := e.CheckOut(CheckOutInput{
		SubjectID: subjectID,
		Method:    MethodAuto,
		ZoneID:    zoneID,
	})
	if err != nil {
		if err != ErrNotCheckedIn {
			e.DroppedAutoEvents.Add(1)
			log.Printf("[attendance] auto check-out dropped for %s: %v", subjectID, err)
		}
		return nil
	}
	return rec
}

type OverrideInput struct {
	SubjectID string
	OwnerID   string
	Date      string
	State     State
	// CheckInAt/CheckOutAt, when set, rewrite the recorded timestamps:
	// the correction path for a forgotten checkout.
	CheckInAt  *time.Time
	CheckOutAt *time.Time
	By         string
	Reason     string
}

// Override sets a record to an administrative state. The only path to
// Absent and HalfDay, the only way to reopen a closed day, and the only
// way to rewrite timestamps after the fact.
func (e *Engine) Override(in OverrideInput) (*Record, error) {
	now := e.now()
	if in.Date == "" {
		in.Date = e.DateOf(now)
	}

	l := e.lockFor(in.SubjectID, in.Date)
	l.Lock()
	defer l.Unlock()

	rec, err := e.store.FindBySubjectDate(in.SubjectID, in.Date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{
			ID:        utils.GenerateUUID(),
			SubjectID: in.SubjectID,
			OwnerID:   in.OwnerID,
			Date:      in.Date,
			CreatedAt: now,
		}
	}

	rec.State = in.State
	rec.Overridden = true
	rec.OverriddenBy = in.By
	rec.OverrideReason = in.Reason
	rec.UpdatedAt = now
	if in.State == StateNotStarted {
		rec.CheckInAt = nil
		rec.CheckInMethod = ""
		rec.CheckInZoneID = ""
		rec.InsideGeofenceAtCheckIn = false
		rec.CheckOutAt = nil
		rec.CheckOutMethod = ""
		rec.CheckOutZoneID = ""
		rec.ProofRef = ""
		rec.IsLate = false
	}
	if in.CheckInAt != nil {
		at := *in.CheckInAt
		rec.CheckInAt = &at
		rec.CheckInMethod = MethodOverride
		rec.IsLate = e.IsLate(at)
	}
	if in.CheckOutAt != nil {
		at := *in.CheckOutAt
		rec.CheckOutAt = &at
		rec.CheckOutMethod = MethodOverride
	}

	if err := e.store.Save(rec); err != nil {
		return nil, err
	}
	e.syncRemote(*rec)
	return rec, nil
}

// Today returns the subject's record for the current company-timezone
// day, nil when the day has not started.
func (e *Engine) Today(subjectID string) (*Record, error) {
	return e.store.FindBySubjectDate(subjectID, e.DateOf(e.now()))
}

// syncRemote mirrors the record to the backend without holding up the
// transition. The local store stays the source of truth either way.
func (e *Engine) syncRemote(rec Record) {
	if e.remote == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.remote.Upsert(ctx, rec); err != nil {
			log.Printf("[attendance] remote sync failed for %s: %v", rec.ID, err)
			return
		}
		if err := e.store.MarkSynced(rec.ID); err != nil {
			log.Printf("[attendance] mark synced failed for %s: %v", rec.ID, err)
		}
	}()
}
