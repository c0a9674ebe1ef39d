package attendance

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geo"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type positionPayload struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
	// Method defaults to manual; qr_code and biometric clients attach a
	// proof reference. "auto" is reserved for the presence monitor.
	Method   Method `json:"method" validate:"omitempty,oneof=manual qr_code biometric"`
	ProofRef string `json:"proof_ref"`
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

// resolveZone checks the reported position against the employer's active
// zones. The zone is resolved server side; clients only report where
// they are.
func resolveZone(user auth.User, p positionPayload) (*geofence.Geofence, error) {
	point := geo.Coordinate{Lat: p.Lat, Lng: p.Lng}
	if err := point.Validate(); err != nil {
		return nil, err
	}
	zones, err := geofence.ActiveForOwner(user.OwnerID)
	if err != nil {
		return nil, err
	}
	m := geofence.Evaluate(point, zones)
	if !m.IsInside {
		return nil, nil
	}
	return m.Geofence, nil
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyCheckedIn):
		http.Error(w, ErrAlreadyCheckedIn.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotCheckedIn):
		http.Error(w, ErrNotCheckedIn.Error(), http.StatusConflict)
	case errors.Is(err, geo.ErrInvalidCoordinate):
		http.Error(w, "location unavailable", http.StatusBadRequest)
	default:
		http.Error(w, "Failed to update attendance: "+err.Error(), http.StatusInternalServerError)
	}
}

// CheckInHandler opens the caller's day from their reported position.
func CheckInHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload positionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "location unavailable", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "location unavailable", http.StatusBadRequest)
		return
	}

	// An out-of-zone check-in is allowed; the membership flag travels on
	// the record for review instead of blocking the subject.
	zone, err := resolveZone(user, payload)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	zoneID := ""
	if zone != nil {
		zoneID = zone.ID
	}

	method := payload.Method
	if method == "" {
		method = MethodManual
	}

	rec, err := DefaultEngine.CheckIn(CheckInInput{
		SubjectID:      user.UserID,
		OwnerID:        user.OwnerID,
		Method:         method,
		ZoneID:         zoneID,
		InsideGeofence: zone != nil,
		ProofRef:       payload.ProofRef,
	})
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// CheckOutHandler closes the caller's day. Checkout is allowed from
// anywhere; the position, when valid and inside a zone, is recorded.
func CheckOutHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload positionPayload
	zoneID := ""
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
		if validate.Struct(payload) == nil {
			if zone, zerr := resolveZone(user, payload); zerr == nil && zone != nil {
				zoneID = zone.ID
			}
		}
	}

	rec, err := DefaultEngine.CheckOut(CheckOutInput{
		SubjectID: user.UserID,
		Method:    MethodManual,
		ZoneID:    zoneID,
	})
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// TodayHandler returns the caller's record for the current day. A day
// not yet started reads as an empty not_started record.
func TodayHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rec, err := DefaultEngine.Today(user.UserID)
	if err != nil {
		http.Error(w, "Failed to fetch attendance: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		rec = &Record{
			SubjectID: user.UserID,
			OwnerID:   user.OwnerID,
			Date:      DefaultEngine.DateOf(DefaultEngine.now()),
			State:     StateNotStarted,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// HistoryHandler lists the caller's past records, newest first, from the
// remote mirror.
func HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var records []Record
	err := db.DB.Where("subject_id = ?", user.UserID).
		Order("date DESC").Limit(90).Find(&records).Error
	if err != nil {
		http.Error(w, "Failed to fetch history: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// CompanyHandler lists every record for the caller's employer on a date
// (admin only). Defaults to the current day.
func CompanyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = DefaultEngine.DateOf(DefaultEngine.now())
	}

	var records []Record
	err := db.DB.Where("owner_id = ? AND date = ?", user.OwnerID, date).
		Order("subject_id").Find(&records).Error
	if err != nil {
		http.Error(w, "Failed to fetch records: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []Record{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// OverrideHandler applies an administrative correction to a subject's
// record (admin only).
func OverrideHandler(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	subjectID := chi.URLParam(r, "subject_id")

	var payload struct {
		Date       string     `json:"date"`
		State      State      `json:"state" validate:"required,oneof=not_started checked_in checked_out absent half_day"`
		CheckInAt  *time.Time `json:"check_in_at"`
		CheckOutAt *time.Time `json:"check_out_at"`
		Reason     string     `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "Invalid override: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := DefaultEngine.Override(OverrideInput{
		SubjectID:  subjectID,
		OwnerID:    admin.OwnerID,
		Date:       payload.Date,
		State:      payload.State,
		CheckInAt:  payload.CheckInAt,
		CheckOutAt: payload.CheckOutAt,
		By:         admin.UserID,
		Reason:     payload.Reason,
	})
	if err != nil {
		http.Error(w, "Failed to override record: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}
