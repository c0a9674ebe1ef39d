package locations

import (
	"log"

	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
)

var (
	DefaultRemote RemoteStore = GormStore{}
	DefaultBuffer *Buffer
)

func Init(cfg config.BufferConfig, local *localstore.Store) {
	if err := db.EnsureSchema(db.DB, "locations"); err != nil {
		log.Fatal("Failed to create locations schema: ", err)
	}

	if err := db.DB.AutoMigrate(&Sample{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}

	buf, err := NewBuffer(cfg, local, DefaultRemote)
	if err != nil {
		log.Fatal("Failed to initialize sample buffer: ", err)
	}
	DefaultBuffer = buf
}
