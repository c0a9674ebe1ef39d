package locations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
)

type fakeLocal struct {
	mu   sync.Mutex
	rows map[string]localstore.SampleRow
	fail error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{rows: make(map[string]localstore.SampleRow)}
}

func (f *fakeLocal) PutSample(row localstore.SampleRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[row.ID]; !ok {
		f.rows[row.ID] = row
	}
	return nil
}

func (f *fakeLocal) HasSample(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeLocal) MarkSamplesSynced(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		row := f.rows[id]
		row.Synced = true
		f.rows[id] = row
	}
	return nil
}

func (f *fakeLocal) UnsyncedSamples(limit int) ([]localstore.SampleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []localstore.SampleRow
	for _, row := range f.rows {
		if !row.Synced {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLocal) QuerySamples(subjectID string, from, to *time.Time, limit int) ([]localstore.SampleRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []localstore.SampleRow
	for _, row := range f.rows {
		if row.SubjectID == subjectID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLocal) DeleteSamplesOlderThan(subjectID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	var n int64
	for id, row := range f.rows {
		if subjectID != "" && row.SubjectID != subjectID {
			continue
		}
		if row.CapturedAt.Before(cutoff) {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeLocal) syncedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, row := range f.rows {
		if row.Synced {
			n++
		}
	}
	return n
}

type fakeRemote struct {
	mu         sync.Mutex
	samples    map[string]Sample
	writeCalls int
	failWrites int
	queryErr   error
	deleteErr  error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{samples: make(map[string]Sample)}
}

func (f *fakeRemote) Put(ctx context.Context, s Sample) error {
	return f.BatchWrite(ctx, []Sample{s})
}

func (f *fakeRemote) BatchWrite(ctx context.Context, batch []Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.failWrites > 0 {
		f.failWrites--
		return ErrRemoteUnavailable
	}
	for _, s := range batch {
		if _, ok := f.samples[s.ID]; !ok {
			f.samples[s.ID] = s
		}
	}
	return nil
}

func (f *fakeRemote) Query(ctx context.Context, subjectID string, from, to *time.Time, limit int) ([]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []Sample
	for _, s := range f.samples {
		if s.SubjectID == subjectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRemote) LatestPerSubject(ctx context.Context, ownerID string) ([]Sample, error) {
	return nil, nil
}

func (f *fakeRemote) DeleteOlderThan(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var n int64
	for id, s := range f.samples {
		if s.SubjectID == subjectID && s.CapturedAt.Before(cutoff) {
			delete(f.samples, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRemote) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

func testBufferConfig() config.BufferConfig {
	return config.BufferConfig{
		BatchSize:   10,
		MaxAttempts: 3,
		BackoffStep: config.Duration(time.Millisecond),
	}
}

func testSample(id, subject string, at time.Time) Sample {
	return Sample{
		ID:         id,
		SubjectID:  subject,
		OwnerID:    "owner-1",
		Lat:        22.4994,
		Lng:        91.7773,
		CapturedAt: at,
	}
}

func TestBuffer_IngestDedupesByID(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	now := time.Now().UTC()
	s := testSample("s-1", "emp-1", now)
	for i := 0; i < 3; i++ {
		if err := buf.Ingest(s); err != nil {
			t.Fatalf("Ingest attempt %d: %v", i, err)
		}
	}

	if got := buf.Pending(); got != 1 {
		t.Fatalf("expected 1 pending sample, got %d", got)
	}

	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if remote.stored() != 1 {
		t.Errorf("expected 1 remote sample, got %d", remote.stored())
	}
	if local.syncedCount() != 1 {
		t.Errorf("expected 1 synced local sample, got %d", local.syncedCount())
	}

	// The id is replayable once synced, still without duplication.
	if err := buf.Ingest(s); err != nil {
		t.Fatalf("re-Ingest after sync: %v", err)
	}
	if got := buf.Pending(); got != 0 {
		t.Errorf("replayed id should not requeue, got %d pending", got)
	}
}

func TestBuffer_FlushRetriesThenDelivers(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	remote.failWrites = 2

	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	if err := buf.Ingest(testSample("s-1", "emp-1", time.Now().UTC())); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("Flush should succeed on third attempt: %v", err)
	}
	if remote.calls() != 3 {
		t.Errorf("expected 3 write attempts, got %d", remote.calls())
	}
	if remote.stored() != 1 {
		t.Errorf("expected sample delivered, got %d", remote.stored())
	}
}

func TestBuffer_FlushGivesUpAndRequeues(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	remote.failWrites = 100

	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	if err := buf.Ingest(testSample("s-1", "emp-1", time.Now().UTC())); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := buf.Flush(context.Background()); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if got := buf.Pending(); got != 1 {
		t.Errorf("failed sample should stay queued, got %d pending", got)
	}
	if local.syncedCount() != 0 {
		t.Errorf("undelivered sample must not be marked synced")
	}
}

func TestBuffer_RecoversUnsyncedOnStart(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()

	row, err := rowFromSample(testSample("s-old", "emp-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("rowFromSample: %v", err)
	}
	if err := local.PutSample(row); err != nil {
		t.Fatalf("PutSample: %v", err)
	}

	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	if got := buf.Pending(); got != 1 {
		t.Fatalf("expected recovered sample queued, got %d", got)
	}

	if err := buf.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if remote.stored() != 1 {
		t.Errorf("recovered sample should reach remote, got %d", remote.stored())
	}
}

func TestBuffer_HistoryFallsBackToLocal(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	remote.queryErr = ErrRemoteUnavailable

	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	if err := buf.Ingest(testSample("s-1", "emp-1", time.Now().UTC())); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	samples, err := buf.History(context.Background(), "emp-1", nil, nil, 100)
	if err != nil {
		t.Fatalf("History should fall back to local: %v", err)
	}
	if len(samples) != 1 || samples[0].ID != "s-1" {
		t.Errorf("expected local sample in history, got %+v", samples)
	}
}

func TestBuffer_PruneFailuresAreIndependent(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	local.fail = errors.New("disk gone")

	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	old := testSample("s-old", "emp-1", time.Now().UTC().Add(-48*time.Hour))
	remote.samples[old.ID] = old

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	err = buf.Prune(context.Background(), "emp-1", cutoff)
	if err == nil {
		t.Fatal("expected local prune error to surface")
	}
	if remote.stored() != 0 {
		t.Errorf("remote prune should proceed despite local failure, %d left", remote.stored())
	}
}

func TestBuffer_PruneIsScopedToSubject(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := buf.Ingest(testSample("a-1", "subj-a", old)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := buf.Ingest(testSample("b-1", "subj-b", old)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := buf.Prune(context.Background(), "subj-a", time.Now().UTC()); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	if ok, _ := local.HasSample("a-1"); ok {
		t.Error("subj-a's old sample should be pruned locally")
	}
	if ok, _ := local.HasSample("b-1"); !ok {
		t.Error("pruning subj-a must not touch subj-b's local samples")
	}
}

func TestBuffer_CloseRejectsFurtherIngest(t *testing.T) {
	local := newFakeLocal()
	remote := newFakeRemote()
	buf, err := NewBuffer(testBufferConfig(), local, remote)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}

	if err := buf.Ingest(testSample("s-1", "emp-1", time.Now().UTC())); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := buf.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if remote.stored() != 1 {
		t.Errorf("Close should flush pending samples, got %d remote", remote.stored())
	}
	if err := buf.Ingest(testSample("s-2", "emp-1", time.Now().UTC())); err == nil {
		t.Error("Ingest after Close should fail")
	}
}
