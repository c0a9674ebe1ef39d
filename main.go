package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GeoPunch/GP-Backend/internal/attendance"
	"github.com/GeoPunch/GP-Backend/internal/auth"
	"github.com/GeoPunch/GP-Backend/internal/config"
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/geofence"
	"github.com/GeoPunch/GP-Backend/internal/localstore"
	"github.com/GeoPunch/GP-Backend/internal/locations"
	"github.com/GeoPunch/GP-Backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	db.Connect()

	storePath := os.Getenv("LOCAL_STORE_PATH")
	if storePath == "" {
		storePath = "geopunch.db"
	}
	local, err := localstore.Open(storePath)
	if err != nil {
		log.Fatal("Failed to open local store: ", err)
	}

	auth.Init()
	geofence.Init()
	locations.Init(cfg.Buffer, local)
	attendance.Init(cfg.Company, local)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go locations.DefaultBuffer.Run(ctx)

	// Daily retention sweep over both sample stores.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Retention.PruneSpec, func() {
		cutoff := time.Now().Add(-cfg.Retention.MaxSampleAge.Std())
		if err := locations.DefaultBuffer.Prune(context.Background(), "", cutoff); err != nil {
			log.Println("Retention prune incomplete: ", err)
		}
	})
	if err != nil {
		log.Fatal("Invalid prune schedule: ", err)
	}
	scheduler.Start()

	ingestLimiter := middleware.NewRateLimiter(5, 20)

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)

	r.Mount("/auth", auth.SetupRoutes())
	r.Mount("/geofences", geofence.SetupRoutes())
	r.Mount("/locations", locations.SetupRoutes(ingestLimiter))
	r.Mount("/attendance", attendance.SetupRoutes())

	server := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		fmt.Println("Server listening on port :" + cfg.Server.Port + "...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed: ", err)
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("Server shutdown: ", err)
	}
	<-scheduler.Stop().Done()

	if err := locations.DefaultBuffer.Close(shutdownCtx); err != nil {
		log.Println("Buffer flush on shutdown: ", err)
	}
	if err := local.Close(); err != nil {
		log.Println("Local store close: ", err)
	}
}
