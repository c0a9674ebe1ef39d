package attendance

import (
	"log"

	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
)

var DefaultEngine *Engine

func Init(company config.CompanyConfig, local *localstore.Store) {
	if err := db.EnsureSchema(db.DB, "attendance"); err != nil {
		log.Fatal("Failed to create attendance schema: ", err)
	}

	if err := db.DB.AutoMigrate(&Record{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}

	loc, err := company.Location()
	if err != nil {
		log.Fatal("Invalid company timezone: ", err)
	}
	hour, minute, err := company.LateClock()
	if err != nil {
		log.Fatal("Invalid late threshold: ", err)
	}

	DefaultEngine = NewEngine(Config{
		LateHour:   hour,
		LateMinute: minute,
		Location:   loc,
	}, NewLocalRecordStore(local), GormRemote{})
}
