package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"driftregistry.org/internal/audit"
	"driftregistry.org/internal/authz"
	"driftregistry.org/internal/httpapi"
	"driftregistry.org/internal/obs"
	"driftregistry.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()

	// Audit persistence is optional. Without a DSN decisions are still
	// journaled to the process log and queryable from memory.
	var pgStore *pg.Store
	if dsn := os.Getenv("DRIFT_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
	}

	var (
		sink    audit.Sink
		querier audit.Querier
	)
	memSink := audit.NewMemorySink()
	if pgStore != nil {
		sink = audit.MultiSink{audit.LogSink{}, pgStore}
		querier = pgStore
	} else {
		sink = audit.MultiSink{audit.LogSink{}, memSink}
		querier = memSink
	}
	recorder := audit.NewRecorder(sink)

	store := authz.NewStore()
	if err := authz.SeedDefaults(ctx, store); err != nil {
		log.Fatalf("seed default roles: %v", err)
	}

	svc := authz.NewService(store,
		authz.WithCache(authz.NewCache(cacheSize(), 0)),
		authz.WithAuditor(recorder),
	)

	rp := httpapi.ReadyProbe{}
	if pgStore != nil {
		rp.DB = pgStore.DB()
	}
	api := httpapi.New(svc, store, querier, rp, version)

	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting driftregistry-authz %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	recorder.Close()
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

func listenAddr() string {
	if addr := strings.TrimSpace(os.Getenv("DRIFT_LISTEN_ADDR")); addr != "" {
		return addr
	}
	return ":8080"
}

func cacheSize() int {
	raw := strings.TrimSpace(os.Getenv("DRIFT_CACHE_SIZE"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
