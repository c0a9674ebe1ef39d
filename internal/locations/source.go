package locations

import (
	"context"
	"errors"
	"log"
	"time"
)

// SourceConfig is the sampling cadence handed to a source on start.
// Interval is the requested period between samples; FastestInterval
// caps how fast the device may deliver when it has fresher data.
type SourceConfig struct {
	Interval        time.Duration
	FastestInterval time.Duration
}

// Source is a live feed of position samples, typically one per tracked
// device. Samples() stays open for the life of the source; Errors()
// carries transient feed failures.
type Source interface {
	Start(ctx context.Context, cfg SourceConfig) error
	Stop() error
	Pause() error
	Resume() error
	Samples() <-chan Sample
	Errors() <-chan error
}

// ReconnectPolicy bounds how hard a subscription tries to revive a dead
// source before giving up.
type ReconnectPolicy struct {
	MaxAttempts int
	BackoffStep time.Duration
}

var ErrSourceGone = errors.New("source terminated")

// Subscription pumps a source into the buffer and restarts the source
// when its feed errors, with linear backoff. The same cadence is
// re-requested on every revival.
type Subscription struct {
	source Source
	buffer *Buffer
	cfg    SourceConfig
	policy ReconnectPolicy
}

func NewSubscription(source Source, buffer *Buffer, cfg SourceConfig, policy ReconnectPolicy) *Subscription {
	return &Subscription{source: source, buffer: buffer, cfg: cfg, policy: policy}
}

// Run consumes the source until ctx is cancelled or reconnection is
// exhausted. Ingest failures are logged, never fatal; the sample is
// still durable on the device side and will be resent.
func (sub *Subscription) Run(ctx context.Context) error {
	if err := sub.source.Start(ctx, sub.cfg); err != nil {
		return err
	}
	defer sub.source.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case s, ok := <-sub.source.Samples():
			if !ok {
				return ErrSourceGone
			}
			if err := sub.buffer.Ingest(s); err != nil {
				log.Printf("[source] ingest %s: %v", s.ID, err)
			}

		case err, ok := <-sub.source.Errors():
			if !ok {
				return ErrSourceGone
			}
			log.Printf("[source] feed error: %v", err)
			if rerr := sub.reconnect(ctx); rerr != nil {
				return rerr
			}
		}
	}
}

func (sub *Subscription) reconnect(ctx context.Context) error {
	sub.source.Stop()
	for attempt := 1; attempt <= sub.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * sub.policy.BackoffStep):
		}
		if err := sub.source.Start(ctx, sub.cfg); err == nil {
			log.Printf("[source] reconnected after %d attempts", attempt)
			return nil
		}
	}
	return ErrSourceGone
}
