package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"accessdesk.org/internal/access"
	"accessdesk.org/internal/audit"
	"accessdesk.org/internal/cache"
	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/httpapi"
	"accessdesk.org/internal/obs"
	"accessdesk.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()

	dsn := os.Getenv("ACCESSDESK_PG_DSN")
	if dsn == "" {
		log.Fatal("missing ACCESSDESK_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	trail := audit.NewTrail(store)

	var invalidator cache.Invalidator = cache.Noop{}
	if base := os.Getenv("ACCESSDESK_CACHE_URL"); base != "" {
		invalidator = cache.NewHTTP(base)
	}

	userSvc, err := directory.NewService(store, trail)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	accessSvc, err := access.NewService(store, trail, invalidator, userSvc)
	if err != nil {
		log.Fatalf("access service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, accessSvc, userSvc, store)

	addr := os.Getenv("ACCESSDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting accessdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
