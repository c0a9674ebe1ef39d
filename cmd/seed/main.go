package main

import (
	"log"

	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/seeds"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")
	db.Connect()

	auth.Init()
	geofence.Init()

	if err := seeds.SeedAll(); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
