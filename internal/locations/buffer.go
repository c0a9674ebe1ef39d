package locations

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
)

// SampleStore is the durable local side of the buffer. *localstore.Store
// satisfies it; tests swap in an in-memory fake.
type SampleStore interface {
	PutSample(row localstore.SampleRow) error
	HasSample(id string) (bool, error)
	MarkSamplesSynced(ids []string) error
	UnsyncedSamples(limit int) ([]localstore.SampleRow, error)
	QuerySamples(subjectID string, from, to *time.Time, limit int) ([]localstore.SampleRow, error)
	DeleteSamplesOlderThan(subjectID string, cutoff time.Time) (int64, error)
}

// Buffer accepts samples from ingest, persists them locally first, and
// pushes them to the remote store in batches. A sample is dropped from
// the pending queue only after the remote write succeeds, so delivery is
// at-least-once; the remote store dedupes by id.
type Buffer struct {
	cfg    config.BufferConfig
	local  SampleStore
	remote RemoteStore

	mu      sync.Mutex
	pending []Sample
	seen    map[string]struct{}

	flushCh chan struct{}
	done    chan struct{}
	closed  bool
}

func NewBuffer(cfg config.BufferConfig, local SampleStore, remote RemoteStore) (*Buffer, error) {
	b := &Buffer{
		cfg:     cfg,
		local:   local,
		remote:  remote,
		seen:    make(map[string]struct{}),
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	// Crash recovery: anything persisted but never acknowledged by the
	// remote goes back on the queue.
	rows, err := local.UnsyncedSamples(0)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s, err := sampleFromRow(row)
		if err != nil {
			log.Printf("[buffer] skipping unreadable sample %s: %v", row.ID, err)
			continue
		}
		b.pending = append(b.pending, s)
		b.seen[s.ID] = struct{}{}
	}
	if len(b.pending) > 0 {
		log.Printf("[buffer] recovered %d unsynced samples", len(b.pending))
	}

	return b, nil
}

// Ingest stores a sample locally and queues it for delivery. Duplicate
// ids are acknowledged without requeueing; a malformed coordinate is
// rejected before anything is written.
func (b *Buffer) Ingest(s Sample) error {
	if err := s.Coordinate().Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("buffer closed")
	}
	if _, dup := b.seen[s.ID]; dup {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	// The local write is the durability point; check the store too so a
	// replay of an already-synced id stays a no-op.
	if ok, err := b.local.HasSample(s.ID); err != nil {
		return err
	} else if ok {
		return nil
	}

	row, err := rowFromSample(s)
	if err != nil {
		return err
	}
	if err := b.local.PutSample(row); err != nil {
		return err
	}

	b.mu.Lock()
	b.pending = append(b.pending, s)
	b.seen[s.ID] = struct{}{}
	full := len(b.pending) >= b.cfg.BatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush drains the queue in batches. On a failed batch the samples are
// requeued at the front, order preserved, and retried with a linearly
// growing pause up to MaxAttempts before giving up until the next cycle.
func (b *Buffer) Flush(ctx context.Context) error {
	for {
		batch := b.takeBatch()
		if len(batch) == 0 {
			return nil
		}

		var lastErr error
		delivered := false
		for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
			if err := b.remote.BatchWrite(ctx, batch); err != nil {
				lastErr = err
				select {
				case <-ctx.Done():
					b.requeue(batch)
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * b.cfg.BackoffStep.Std()):
				}
				continue
			}
			delivered = true
			break
		}

		if !delivered {
			b.requeue(batch)
			log.Printf("[buffer] flush gave up after %d attempts: %v", b.cfg.MaxAttempts, lastErr)
			return lastErr
		}

		ids := make([]string, len(batch))
		for i, s := range batch {
			ids[i] = s.ID
		}
		if err := b.local.MarkSamplesSynced(ids); err != nil {
			// Remote already has them; a redelivery later is harmless.
			log.Printf("[buffer] mark synced failed: %v", err)
		}

		b.mu.Lock()
		for _, id := range ids {
			delete(b.seen, id)
		}
		b.mu.Unlock()
	}
}

func (b *Buffer) takeBatch() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.cfg.BatchSize
	if n > len(b.pending) {
		n = len(b.pending)
	}
	batch := make([]Sample, n)
	copy(batch, b.pending[:n])
	b.pending = b.pending[n:]
	return batch
}

func (b *Buffer) requeue(batch []Sample) {
	b.mu.Lock()
	b.pending = append(batch, b.pending...)
	b.mu.Unlock()
}

// Pending reports how many samples are queued for delivery.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// History reads a subject's samples from the remote store, newest first,
// falling back to the local store when the remote is unreachable.
func (b *Buffer) History(ctx context.Context, subjectID string, from, to *time.Time, limit int) ([]Sample, error) {
	samples, err := b.remote.Query(ctx, subjectID, from, to, limit)
	if err == nil {
		return samples, nil
	}
	log.Printf("[buffer] remote history unavailable, serving local: %v", err)

	rows, lerr := b.local.QuerySamples(subjectID, from, to, limit)
	if lerr != nil {
		return nil, errors.Join(err, lerr)
	}
	out := make([]Sample, 0, len(rows))
	for _, row := range rows {
		s, serr := sampleFromRow(row)
		if serr != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Prune deletes samples older than cutoff from both stores, scoped to
// one subject, or to all when subjectID is empty. The two deletions are
// independent: a failure on one side never blocks the other, and both
// errors surface.
func (b *Buffer) Prune(ctx context.Context, subjectID string, cutoff time.Time) error {
	var localErr, remoteErr error

	if n, err := b.local.DeleteSamplesOlderThan(subjectID, cutoff); err != nil {
		localErr = err
	} else if n > 0 {
		log.Printf("[buffer] pruned %d local samples older than %s", n, cutoff.Format(time.RFC3339))
	}

	if n, err := b.remote.DeleteOlderThan(ctx, subjectID, cutoff); err != nil {
		remoteErr = err
	} else if n > 0 {
		log.Printf("[buffer] pruned %d remote samples older than %s", n, cutoff.Format(time.RFC3339))
	}

	return errors.Join(localErr, remoteErr)
}

// Run drives periodic flushing until ctx is cancelled. A full batch
// flushes immediately and resets the timer.
func (b *Buffer) Run(ctx context.Context) {
	interval := b.cfg.FlushInterval.Std()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-b.flushCh:
			if err := b.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[buffer] flush: %v", err)
			}
			ticker.Reset(interval)
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[buffer] flush: %v", err)
			}
		}
	}
}

// Close stops the run loop, attempts one final bounded flush, and
// rejects further ingest. Undelivered samples stay in the local store
// and are recovered on the next start.
func (b *Buffer) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	return b.Flush(ctx)
}
