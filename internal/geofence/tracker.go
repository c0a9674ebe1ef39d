package geofence

import (
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geo"
)

// Membership is the outcome of evaluating one position against a zone set.
// Ephemeral: recomputed on every sample, never persisted.
type Membership struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Geofence   *Geofence      `json:"geofence,omitempty"`
	IsInside   bool           `json:"is_inside"`
}

// Evaluate returns the single enclosing zone for point, if any. Inactive
// zones are ignored. When zones overlap, the nearest center wins; equal
// distances fall back to the lexicographically lowest id, so the same
// inputs always produce the same result.
func Evaluate(point geo.Coordinate, zones []Geofence) Membership {
	best := -1
	var bestDist float64

	for i := range zones {
		z := &zones[i]
		if !z.Active {
			continue
		}
		d := geo.Distance(point, z.Center())
		if d > z.RadiusMeters {
			continue
		}
		if best < 0 || d < bestDist || (d == bestDist && z.ID < zones[best].ID) {
			best = i
			bestDist = d
		}
	}

	if best < 0 {
		return Membership{Coordinate: point}
	}
	match := zones[best]
	return Membership{Coordinate: point, Geofence: &match, IsInside: true}
}

// ActiveForOwner loads an employer's active zones for evaluation.
func ActiveForOwner(ownerID string) ([]Geofence, error) {
	var zones []Geofence
	err := db.DB.Where("owner_id = ? AND active = ?", ownerID, true).
		Order("id").
		Find(&zones).Error
	return zones, err
}
