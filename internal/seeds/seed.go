package seeds

import (
	"log"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const demoOwnerID = "demo-company"

var demoZones = []geofence.Geofence{
	{
		ID:           "zone-head-office",
		OwnerID:      demoOwnerID,
		Name:         "Head Office",
		Lat:          22.4994,
		Lng:          91.7773,
		RadiusMeters: 100,
		Active:       true,
	},
	{
		ID:           "zone-warehouse",
		OwnerID:      demoOwnerID,
		Name:         "Warehouse",
		Lat:          22.5102,
		Lng:          91.7891,
		RadiusMeters: 150,
		Active:       true,
	},
}

// SeedAll provisions a demo employer: one admin, one employee, two work
// zones. Existing rows are left alone, so it is safe to run twice.
func SeedAll() error {
	if err := seedUser("admin", "admin123", "admin", "Demo Admin"); err != nil {
		return err
	}
	if err := seedUser("employee", "employee123", "employee", "Demo Employee"); err != nil {
		return err
	}

	for _, zone := range demoZones {
		var existing geofence.Geofence
		err := db.DB.First(&existing, "id = ?", zone.ID).Error
		if err == nil {
			log.Printf("Zone already exists, skipping: %s", zone.Name)
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := db.DB.Create(&zone).Error; err != nil {
			return err
		}
		log.Printf("Created zone: %s", zone.Name)
	}

	return nil
}

func seedUser(username, password, role, fullName string) error {
	var existing auth.User
	err := db.DB.First(&existing, "username = ?", username).Error
	if err == nil {
		log.Printf("User already exists, skipping: %s", username)
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := auth.User{
		UserID:         utils.GenerateUUID(),
		Username:       username,
		HashedPassword: string(hashed),
		Role:           role,
		OwnerID:        demoOwnerID,
		FullName:       fullName,
	}
	if err := db.DB.Create(&user).Error; err != nil {
		return err
	}
	log.Printf("Created user: %s (%s)", username, role)
	return nil
}
