package geofence

import (
	"encoding/json"
	"net/http"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geo"
	"github.com/GeoPunch/GP-Backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type zonePayload struct {
	Name         string  `json:"name" validate:"required"`
	Lat          float64 `json:"lat" validate:"latitude"`
	Lng          float64 `json:"lng" validate:"longitude"`
	RadiusMeters float64 `json:"radius_meters" validate:"gt=0"`
	Active       *bool   `json:"active"`
}

func callerOwner(r *http.Request) (auth.User, bool) {
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

// ListZones returns the caller's employer zones, inactive ones included.
func ListZones(w http.ResponseWriter, r *http.Request) {
	user, ok := callerOwner(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var zones []Geofence
	if err := db.DB.Where("owner_id = ?", user.OwnerID).Order("id").Find(&zones).Error; err != nil {
		http.Error(w, "Failed to fetch zones: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zones)
}

// GetZone returns a single zone by ID.
func GetZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zone_id")

	var zone Geofence
	if err := db.DB.First(&zone, "id = ?", zoneID).Error; err != nil {
		http.Error(w, "Zone not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zone)
}

// CreateZone creates a new zone (admin only).
func CreateZone(w http.ResponseWriter, r *http.Request) {
	user, ok := callerOwner(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload zonePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "Invalid zone: "+err.Error(), http.StatusBadRequest)
		return
	}

	zone := Geofence{
		ID:           utils.GenerateUUID(),
		OwnerID:      user.OwnerID,
		Name:         payload.Name,
		Lat:          payload.Lat,
		Lng:          payload.Lng,
		RadiusMeters: payload.RadiusMeters,
		Active:       true,
	}
	if payload.Active != nil {
		zone.Active = *payload.Active
	}

	if err := db.DB.Create(&zone).Error; err != nil {
		http.Error(w, "Failed to create zone: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(zone)
}

// UpdateZone patches an existing zone (admin only).
func UpdateZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zone_id")

	var zone Geofence
	if err := db.DB.First(&zone, "id = ?", zoneID).Error; err != nil {
		http.Error(w, "Zone not found", http.StatusNotFound)
		return
	}

	var updates struct {
		Name         *string  `json:"name,omitempty"`
		Lat          *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
		Lng          *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
		RadiusMeters *float64 `json:"radius_meters,omitempty" validate:"omitempty,gt=0"`
		Active       *bool    `json:"active,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(updates); err != nil {
		http.Error(w, "Invalid zone update: "+err.Error(), http.StatusBadRequest)
		return
	}

	updateMap := make(map[string]interface{})
	if updates.Name != nil {
		updateMap["name"] = *updates.Name
	}
	if updates.Lat != nil {
		updateMap["lat"] = *updates.Lat
	}
	if updates.Lng != nil {
		updateMap["lng"] = *updates.Lng
	}
	if updates.RadiusMeters != nil {
		updateMap["radius_meters"] = *updates.RadiusMeters
	}
	if updates.Active != nil {
		updateMap["active"] = *updates.Active
	}

	if err := db.DB.Model(&zone).Updates(updateMap).Error; err != nil {
		http.Error(w, "Failed to update zone: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(zone)
}

// DeleteZone removes a zone (admin only).
func DeleteZone(w http.ResponseWriter, r *http.Request) {
	zoneID := chi.URLParam(r, "zone_id")

	if err := db.DB.Delete(&Geofence{}, "id = ?", zoneID).Error; err != nil {
		http.Error(w, "Failed to delete zone: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EvaluateHandler answers "which zone encloses this point right now" for
// the caller's employer. Admin debugging surface.
func EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := callerOwner(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload struct {
		Lat float64 `json:"lat" validate:"latitude"`
		Lng float64 `json:"lng" validate:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(payload); err != nil {
		http.Error(w, "Invalid coordinate", http.StatusBadRequest)
		return
	}

	zones, err := ActiveForOwner(user.OwnerID)
	if err != nil {
		http.Error(w, "Failed to fetch zones: "+err.Error(), http.StatusInternalServerError)
		return
	}

	result := Evaluate(geo.Coordinate{Lat: payload.Lat, Lng: payload.Lng}, zones)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
