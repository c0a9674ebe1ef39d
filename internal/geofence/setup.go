package geofence

import (
	"log"

	"github.com/GeoPunch/GP-Backend/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "geofence"); err != nil {
		log.Fatal("Failed to create geofence schema: ", err)
	}

	if err := db.DB.AutoMigrate(&Geofence{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}
}
