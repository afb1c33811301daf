// Command tz-gateway is the HTTP entry point for the inference pipeline:
// it loads a declarative config document, wires providers/cache/store
// into a Pipeline, and serves /inference over chi, reusing the gateway's
// own middleware stack, SSE streaming helper, and graceful-shutdown
// pattern.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/tensorzero/tensorzero-sub023/config"
	"github.com/tensorzero/tensorzero-sub023/dataset"
	"github.com/tensorzero/tensorzero-sub023/feedback"
	"github.com/tensorzero/tensorzero-sub023/internal/logging"
	"github.com/tensorzero/tensorzero-sub023/internal/tracing"
	"github.com/tensorzero/tensorzero-sub023/internal/version"
)

func main() {
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfgPath := os.Getenv("GATEWAY_CONFIG")
	if cfgPath == "" {
		log.Fatal("GATEWAY_CONFIG must point to a functions/models/store config document")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Setup(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		log.Fatalf("tracing setup: %v", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pipeline, closeAll, err := buildPipeline(ctx, *cfg)
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}
	defer func() {
		if err := closeAll(); err != nil {
			log.Printf("shutdown: closing store: %v", err)
		}
	}()

	go pipeline.Persist.Run(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	var fbStore *feedback.Store
	if dsn := os.Getenv("FEEDBACK_DB_DSN"); dsn != "" {
		fbStore, err = feedback.NewSQLiteStore(dsn)
		if err != nil {
			log.Fatalf("opening feedback store: %v", err)
		}
	}

	var dsStore *dataset.Store
	if dsn := os.Getenv("DATASET_DB_DSN"); dsn != "" {
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatalf("opening dataset db: %v", err)
		}
		dsStore, err = dataset.NewStore(db)
		if err != nil {
			log.Fatalf("opening dataset store: %v", err)
		}
	}

	h := &handlers{pipeline: pipeline, functions: cfg.Functions, feedback: fbStore, datasets: dsStore}
	r.Post("/inference", h.infer)
	r.Post("/feedback", h.feedback)
	r.Post("/datasets/{name}/datapoints", h.createDatapoints)
	r.Get("/datasets/{name}/datapoints", h.listDatapoints)
	r.Delete("/datasets/{name}", h.deleteDataset)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("tz-gateway %s listening on %s (%d functions)", version.Short(), addr, len(cfg.Functions))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("server error: %v", err)
	}
	log.Println("server stopped.")
}
