package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeRecordStore struct {
	mu      sync.Mutex
	records map[string]Record
	failure error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]Record)}
}

func (f *fakeRecordStore) Get(id string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeRecordStore) FindBySubjectDate(subjectID, date string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	for _, rec := range f.records {
		if rec.SubjectID == subjectID && rec.Date == date {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordStore) Save(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeRecordStore) MarkSynced(id string) error { return nil }

func (f *fakeRecordStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeRemoteWriter struct {
	mu      sync.Mutex
	upserts int
}

func (f *fakeRemoteWriter) Upsert(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return nil
}

// fixedClock pins the engine to a deterministic moment.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testEngine(store RecordStore, at time.Time) *Engine {
	return NewEngine(Config{
		LateHour:   9,
		LateMinute: 15,
		Location:   time.UTC,
		Now:        fixedClock(at),
	}, store, nil)
}

var morning = time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

func TestEngine_CheckInThenOut(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	rec, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", OwnerID: "own-1", Method: MethodManual, ZoneID: "z-1"})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.State != StateCheckedIn {
		t.Errorf("expected checked_in, got %s", rec.State)
	}
	if rec.IsLate {
		t.Error("09:00 check-in should not be late")
	}
	if rec.Date != "2026-08-26" {
		t.Errorf("unexpected date %s", rec.Date)
	}

	eng.cfg.Now = fixedClock(morning.Add(8 * time.Hour))
	out, err := eng.CheckOut(CheckOutInput{SubjectID: "emp-1", Method: MethodManual, ZoneID: "z-1"})
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if out.State != StateCheckedOut {
		t.Errorf("expected checked_out, got %s", out.State)
	}
	if got := out.WorkedDuration(); got != 8*time.Hour {
		t.Errorf("expected 8h worked, got %s", got)
	}
}

func TestEngine_SecondCheckInRejected(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	if store.count() != 1 {
		t.Errorf("expected a single record, got %d", store.count())
	}
}

func TestEngine_CheckOutWithoutCheckIn(t *testing.T) {
	eng := testEngine(newFakeRecordStore(), morning)

	if _, err := eng.CheckOut(CheckOutInput{SubjectID: "emp-1", Method: MethodManual}); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn, got %v", err)
	}
}

func TestEngine_ClosedDayStaysClosed(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if _, err := eng.CheckOut(CheckOutInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("re-opening a closed day should fail, got %v", err)
	}
	if _, err := eng.CheckOut(CheckOutInput{SubjectID: "emp-1", Method: MethodManual}); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("second checkout should fail, got %v", err)
	}
}

func TestEngine_LateThreshold(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, time.Date(2026, 8, 26, 9, 20, 0, 0, time.UTC))

	rec, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !rec.IsLate {
		t.Error("09:20 check-in should be late against a 09:15 cutoff")
	}

	// Exactly on the cutoff is on time.
	eng2 := testEngine(newFakeRecordStore(), time.Date(2026, 8, 26, 9, 15, 0, 0, time.UTC))
	rec2, err := eng2.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec2.IsLate {
		t.Error("09:15 sharp should not be late")
	}
}

func TestEngine_AutoTransitionsAreSilentlyIdempotent(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	first := eng.AutoCheckIn("emp-1", "own-1", "z-1")
	if first == nil {
		t.Fatal("first auto check-in should produce a record")
	}
	if first.CheckInMethod != MethodAuto {
		t.Errorf("expected auto method, got %s", first.CheckInMethod)
	}

	for i := 0; i < 3; i++ {
		if rec := eng.AutoCheckIn("emp-1", "own-1", "z-1"); rec != nil {
			t.Fatalf("repeat auto check-in %d should be a no-op", i)
		}
	}
	if got := eng.DroppedAutoEvents.Load(); got != 0 {
		t.Errorf("idempotent no-ops are not drops, counter at %d", got)
	}
	if store.count() != 1 {
		t.Errorf("expected a single record, got %d", store.count())
	}

	if rec := eng.AutoCheckOut("emp-1", "z-1"); rec == nil {
		t.Fatal("auto check-out of an open day should close it")
	}
	if rec := eng.AutoCheckOut("emp-1", "z-1"); rec != nil {
		t.Fatal("repeat auto check-out should be a no-op")
	}
}

func TestEngine_AutoFailureCountsAsDropped(t *testing.T) {
	store := newFakeRecordStore()
	store.failure = errors.New("disk gone")
	eng := testEngine(store, morning)

	if rec := eng.AutoCheckIn("emp-1", "own-1", "z-1"); rec != nil {
		t.Fatal("failed auto check-in should return nil")
	}
	if got := eng.DroppedAutoEvents.Load(); got != 1 {
		t.Errorf("expected 1 dropped event, got %d", got)
	}
}

func TestEngine_ConcurrentCheckInsOneWinner(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	var wg sync.WaitGroup
	var okCount, conflictCount int64
	var mu sync.Mutex
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrAlreadyCheckedIn):
				conflictCount++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if okCount != 1 {
		t.Errorf("expected exactly one winner, got %d", okCount)
	}
	if conflictCount != 15 {
		t.Errorf("expected 15 conflicts, got %d", conflictCount)
	}
	if store.count() != 1 {
		t.Errorf("expected a single record, got %d", store.count())
	}
}

func TestEngine_OverrideHalfDayAndReopen(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	rec, err := eng.Override(OverrideInput{
		SubjectID: "emp-1",
		State:     StateHalfDay,
		By:        "admin-1",
		Reason:    "left sick at noon",
	})
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if rec.State != StateHalfDay {
		t.Errorf("expected half_day, got %s", rec.State)
	}
	if !rec.Overridden || rec.OverriddenBy != "admin-1" {
		t.Errorf("override attribution missing, got %q", rec.OverriddenBy)
	}

	// Reopening via override clears the day entirely.
	rec, err = eng.Override(OverrideInput{SubjectID: "emp-1", State: StateNotStarted, By: "admin-1"})
	if err != nil {
		t.Fatalf("Override reset: %v", err)
	}
	if rec.CheckInAt != nil || rec.IsLate {
		t.Error("reset record should carry no check-in data")
	}
	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("check-in after reset should succeed: %v", err)
	}
}

func TestEngine_RecordsInsideGeofenceFlag(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	// Out-of-zone manual check-in is allowed; the flag says where they were.
	rec, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual, InsideGeofence: false})
	if err != nil {
		t.Fatalf("out-of-zone check-in should be allowed: %v", err)
	}
	if rec.InsideGeofenceAtCheckIn {
		t.Error("flag should be false for an out-of-zone check-in")
	}

	auto := testEngine(newFakeRecordStore(), morning).AutoCheckIn("emp-2", "own-1", "z-1")
	if auto == nil {
		t.Fatal("auto check-in should produce a record")
	}
	if !auto.InsideGeofenceAtCheckIn {
		t.Error("a geofence-triggered check-in is inside by definition")
	}
}

func TestEngine_OverrideRewritesTimestamps(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	if _, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual}); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	// Forgotten checkout: the admin closes the day with the real time.
	out := time.Date(2026, 8, 26, 17, 30, 0, 0, time.UTC)
	rec, err := eng.Override(OverrideInput{
		SubjectID:  "emp-1",
		State:      StateCheckedOut,
		CheckOutAt: &out,
		By:         "admin-1",
		Reason:     "forgot to check out",
	})
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if rec.State != StateCheckedOut || rec.CheckOutAt == nil {
		t.Fatalf("expected a closed day with a checkout time, got %+v", rec)
	}
	if !rec.CheckOutAt.Equal(out) {
		t.Errorf("checkout time not rewritten, got %v", rec.CheckOutAt)
	}
	if rec.CheckOutMethod != MethodOverride {
		t.Errorf("rewritten timestamp should be attributed to override, got %s", rec.CheckOutMethod)
	}
	if got := rec.WorkedDuration(); got != 8*time.Hour+30*time.Minute {
		t.Errorf("expected 8h30m worked, got %s", got)
	}

	// Rewriting the check-in past the cutoff re-derives lateness.
	late := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	rec, err = eng.Override(OverrideInput{
		SubjectID: "emp-1",
		State:     StateCheckedOut,
		CheckInAt: &late,
		By:        "admin-1",
	})
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if !rec.CheckInAt.Equal(late) || !rec.IsLate {
		t.Errorf("check-in rewrite should re-derive lateness, got at=%v late=%v", rec.CheckInAt, rec.IsLate)
	}
}

func TestEngine_LockSetStaysBounded(t *testing.T) {
	eng := testEngine(newFakeRecordStore(), morning)

	if a, b := eng.lockFor("emp-1", "2026-08-26"), eng.lockFor("emp-1", "2026-08-26"); a != b {
		t.Fatal("same key must map to the same lock")
	}

	unique := make(map[*sync.Mutex]struct{})
	for i := 0; i < 1000; i++ {
		unique[eng.lockFor(fmt.Sprintf("emp-%d", i), fmt.Sprintf("2026-08-%02d", i%31))] = struct{}{}
	}
	if len(unique) > lockStripes {
		t.Errorf("lock set should be bounded by the stripe count, got %d", len(unique))
	}
}

func TestEngine_OverrideAbsentWithoutRecord(t *testing.T) {
	store := newFakeRecordStore()
	eng := testEngine(store, morning)

	rec, err := eng.Override(OverrideInput{
		SubjectID: "emp-2",
		OwnerID:   "own-1",
		Date:      "2026-08-25",
		State:     StateAbsent,
		By:        "admin-1",
	})
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if rec.State != StateAbsent || rec.Date != "2026-08-25" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestEngine_DateRollsWithTimezone(t *testing.T) {
	dhaka, err := time.LoadLocation("Asia/Dhaka")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 20:30 UTC on the 26th is already the 27th in Dhaka (UTC+6).
	at := time.Date(2026, 8, 26, 20, 30, 0, 0, time.UTC)
	eng := NewEngine(Config{LateHour: 9, LateMinute: 15, Location: dhaka, Now: fixedClock(at)}, newFakeRecordStore(), nil)

	rec, err := eng.CheckIn(CheckInInput{SubjectID: "emp-1", Method: MethodManual})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.Date != "2026-08-27" {
		t.Errorf("expected company-timezone date 2026-08-27, got %s", rec.Date)
	}
}
