package locations

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const defaultHistoryLimit = 500

type samplePayload struct {
	ID             string    `json:"id"`
	Lat            float64   `json:"lat" validate:"latitude"`
	Lng            float64   `json:"lng" validate:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters" validate:"gte=0"`
	AltitudeMeters *float64  `json:"altitude_meters"`
	SpeedMps       *float64  `json:"speed_mps"`
	HeadingDegrees *float64  `json:"heading_degrees"`
	CapturedAt     time.Time `json:"captured_at"`
}

func caller(r *http.Request) (auth.User, bool) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		return auth.User{}, false
	}
	user, err := auth.FindUserByID(userID)
	if err != nil {
		return auth.User{}, false
	}
	return user, true
}

// IngestHandler accepts a batch of samples from a device. Replays of
// already-seen ids are acknowledged, not duplicated.
func IngestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payloads []samplePayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, p := range payloads {
		if err := validate.Struct(p); err != nil {
			http.Error(w, "Invalid sample: "+err.Error(), http.StatusBadRequest)
			return
		}
		s := Sample{
			ID:             p.ID,
			SubjectID:      user.UserID,
			OwnerID:        user.OwnerID,
			Lat:            p.Lat,
			Lng:            p.Lng,
			AccuracyMeters: p.AccuracyMeters,
			AltitudeMeters: p.AltitudeMeters,
			SpeedMps:       p.SpeedMps,
			HeadingDegrees: p.HeadingDegrees,
			CapturedAt:     p.CapturedAt,
		}
		if s.ID == "" {
			s.ID = utils.GenerateUUID()
		}
		if s.CapturedAt.IsZero() {
			s.CapturedAt = time.Now().UTC()
		}
		if err := DefaultBuffer.Ingest(s); err != nil {
			http.Error(w, "Failed to store sample: "+err.Error(), http.StatusInternalServerError)
			return
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}

func historyWindow(r *http.Request) (from, to *time.Time, limit int, err error) {
	limit = defaultHistoryLimit
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, 0, perr
		}
		from = &t
	}
	if v := q.Get("to"); v != "" {
		t, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return nil, nil, 0, perr
		}
		to = &t
	}
	if v := q.Get("limit"); v != "" {
		n, perr := strconv.Atoi(v)
		if perr != nil || n <= 0 {
			return nil, nil, 0, errors.New("invalid limit")
		}
		limit = n
	}
	return from, to, limit, nil
}

// HistoryHandler returns the caller's own sample history.
func HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	serveHistory(w, r, user.UserID)
}

// SubjectHistoryHandler returns another subject's history (admin only).
func SubjectHistoryHandler(w http.ResponseWriter, r *http.Request) {
	serveHistory(w, r, chi.URLParam(r, "subject_id"))
}

func serveHistory(w http.ResponseWriter, r *http.Request, subjectID string) {
	from, to, limit, err := historyWindow(r)
	if err != nil {
		http.Error(w, "Invalid time window", http.StatusBadRequest)
		return
	}

	samples, err := DefaultBuffer.History(r.Context(), subjectID, from, to, limit)
	if err != nil {
		http.Error(w, "Failed to fetch history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []Sample{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(samples)
}

// LatestHandler returns the newest sample per subject for the caller's
// employer (admin only).
func LatestHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	samples, err := DefaultRemote.LatestPerSubject(r.Context(), user.OwnerID)
	if err != nil {
		http.Error(w, "Failed to fetch latest positions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if samples == nil {
		samples = []Sample{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(samples)
}

// PruneHandler deletes a subject's samples older than the cutoff from
// both stores (admin only).
func PruneHandler(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subject_id")

	cutoffStr := r.URL.Query().Get("before")
	if cutoffStr == "" {
		http.Error(w, "Missing before parameter", http.StatusBadRequest)
		return
	}
	cutoff, err := time.Parse(time.RFC3339, cutoffStr)
	if err != nil {
		http.Error(w, "Invalid before parameter", http.StatusBadRequest)
		return
	}

	if err := DefaultBuffer.Prune(r.Context(), subjectID, cutoff); err != nil {
		http.Error(w, "Prune incomplete: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
