package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/attendance"
	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
	"github.com/GeoPunch/GP-Backend/internal/locations"
	"github.com/GeoPunch/GP-Backend/internal/presence"
	"github.com/GeoPunch/GP-Backend/internal/utils"
	"github.com/joho/godotenv"
)

// Walks a fake subject through a zone: approach, loiter, leave. Useful
// for eyeballing the auto check-in/out path against a seeded database.
var (
	subjectID = flag.String("subject", "sim-subject", "Subject id to walk")
	ownerID   = flag.String("owner", "demo-company", "Employer id whose zones to walk through")
	steps     = flag.Int("steps", 12, "Number of samples to emit")
	interval  = flag.Duration("interval", 500*time.Millisecond, "Delay between samples")
)

// walkSource emits samples along a straight line through the target
// point. It is a locations.Source, the same contract a device feed has.
type walkSource struct {
	subjectID string
	ownerID   string
	lat, lng  float64
	steps     int
	interval  time.Duration

	samples chan locations.Sample
	errs    chan error
	cancel  context.CancelFunc
	paused  bool
}

func newWalkSource(subjectID, ownerID string, lat, lng float64, steps int) *walkSource {
	return &walkSource{
		subjectID: subjectID,
		ownerID:   ownerID,
		lat:       lat,
		lng:       lng,
		steps:     steps,
		samples:   make(chan locations.Sample),
		errs:      make(chan error, 1),
	}
}

func (w *walkSource) Start(ctx context.Context, cfg locations.SourceConfig) error {
	w.interval = cfg.Interval
	ctx, w.cancel = context.WithCancel(ctx)
	go w.walk(ctx)
	return nil
}

func (w *walkSource) walk(ctx context.Context) {
	defer close(w.samples)

	// Start ~0.01 deg south of the zone, cross it, and keep going.
	const span = 0.02
	for i := 0; i < w.steps; i++ {
		if w.paused {
			continue
		}
		progress := float64(i) / float64(w.steps-1)
		s := locations.Sample{
			ID:         utils.GenerateUUID(),
			SubjectID:  w.subjectID,
			OwnerID:    w.ownerID,
			Lat:        w.lat - span/2 + span*progress,
			Lng:        w.lng,
			CapturedAt: time.Now().UTC(),
		}
		select {
		case <-ctx.Done():
			return
		case w.samples <- s:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *walkSource) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

func (w *walkSource) Pause() error  { w.paused = true; return nil }
func (w *walkSource) Resume() error { w.paused = false; return nil }

func (w *walkSource) Samples() <-chan locations.Sample { return w.samples }
func (w *walkSource) Errors() <-chan error             { return w.errs }

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	db.Connect()

	local, err := localstore.Open(":memory:")
	if err != nil {
		log.Fatal("Failed to open local store: ", err)
	}
	defer local.Close()

	geofence.Init()
	locations.Init(cfg.Buffer, local)
	attendance.Init(cfg.Company, local)

	zones, err := geofence.ActiveForOwner(*ownerID)
	if err != nil || len(zones) == 0 {
		log.Fatalf("No active zones for owner %s (run cmd/seed first): %v", *ownerID, err)
	}
	target := zones[0]
	fmt.Printf("Walking %s through %q (%.4f, %.4f, r=%.0fm)\n",
		*subjectID, target.Name, target.Lat, target.Lng, target.RadiusMeters)

	source := newWalkSource(*subjectID, *ownerID, target.Lat, target.Lng, *steps)
	cadence := locations.SourceConfig{Interval: *interval, FastestInterval: *interval / 2}
	monitor := presence.NewMonitor(*subjectID, *ownerID, source, cadence,
		locations.DefaultBuffer, attendance.DefaultEngine, geofence.ActiveForOwner)

	if err := monitor.Run(context.Background()); err != nil && !errors.Is(err, locations.ErrSourceGone) {
		log.Fatal("Monitor failed: ", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := locations.DefaultBuffer.Close(ctx); err != nil {
		log.Println("Flush incomplete: ", err)
	}

	rec, err := attendance.DefaultEngine.Today(*subjectID)
	if err != nil {
		log.Fatal("Failed to read record: ", err)
	}
	if rec == nil {
		fmt.Println("No attendance record produced")
		return
	}
	fmt.Printf("Record: state=%s late=%v in=%v out=%v worked=%s\n",
		rec.State, rec.IsLate, rec.CheckInAt, rec.CheckOutAt, rec.WorkedDuration())
}
