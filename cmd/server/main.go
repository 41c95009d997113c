package main

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tri-scoring/backend/internal/calibration"
	"github.com/tri-scoring/backend/internal/config"
	"github.com/tri-scoring/backend/internal/database"
	"github.com/tri-scoring/backend/internal/equating"
	"github.com/tri-scoring/backend/internal/executions"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/metrics"
	"github.com/tri-scoring/backend/internal/middleware"
	"github.com/tri-scoring/backend/internal/scoring"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		lg.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		lg.Fatal("Failed to run migrations", "error", err)
	}

	// Engine
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	est := irt.NewEstimator(irt.EstimatorConfigFrom(cfg.TRI), lg, m)
	svc := executions.NewService(
		executions.NewStore(db),
		scoring.NewScorer(scoring.ConfigFrom(cfg.TRI), est, lg, m),
		calibration.NewCalibrator(calibration.ConfigFrom(cfg.TRI), est, lg, m),
		equating.NewEquator(lg, m),
		lg,
	)

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Observe(lg, m))

	api := r.PathPrefix("/api/v1").Subrouter()
	executions.NewHandler(svc, lg).Register(api)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})

	handler := c.Handler(r)

	lg.Info("Server starting", "port", cfg.Port, "workers", cfg.TRI.Workers, "score_clamp", cfg.TRI.ScoreClamp)
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		lg.Fatal("Server failed", "error", err)
	}
}
