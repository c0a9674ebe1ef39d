package geofence

import (
	"time"

	"github.com/GeoPunch/GP-Backend/internal/geo"
)

// Geofence is a circular presence zone owned by an employer. Reference
// data: administrators create and edit it, the core only reads it.
type Geofence struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	OwnerID      string    `gorm:"index;not null" json:"owner_id"`
	Name         string    `json:"name"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	RadiusMeters float64   `json:"radius_meters"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Geofence) TableName() string {
	return "geofence.zones"
}

func (g Geofence) Center() geo.Coordinate {
	return geo.Coordinate{Lat: g.Lat, Lng: g.Lng}
}
