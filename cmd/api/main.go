package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"campusattend/internal/api"
	"campusattend/internal/app"
	"campusattend/internal/attendance"
	"campusattend/internal/config"
	"campusattend/internal/docstore"
	"campusattend/internal/logging"
	"campusattend/internal/metrics"
)

var version = "dev"

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, flush := logging.New(logging.Options{
		Service:      "attendance-api",
		Env:          cfg.Env,
		Production:   cfg.Production(),
		RollbarToken: cfg.RollbarToken,
		CodeVersion:  version,
	})

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		flush()
		os.Exit(1)
	}
	flush()
}

func run(cfg config.App, log *slog.Logger) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clock := clockwork.NewRealClock()
	st := backend.Store
	detector := attendance.NewDetector(attendance.Thresholds{
		GeofenceWeight:      cfg.Fraud.GeofenceWeight,
		MockLocationWeight:  cfg.Fraud.MockLocationWeight,
		VelocityWeight:      cfg.Fraud.VelocityWeight,
		MaxPlausibleSpeed:   cfg.Fraud.MaxPlausibleSpeed,
		FlagThreshold:       cfg.Fraud.FlagThreshold,
		FlagOutsideGeofence: cfg.Fraud.FlagOutsideGeofence,
	})

	var docs api.Uploader
	if cfg.CloudinaryConfigured() {
		docs = docstore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("document storage configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		log.Warn("document storage not configured; uploads are disabled")
	}

	health := make(map[string]api.HealthCheck, len(backend.Health))
	for name, check := range backend.Health {
		health[name] = check
	}

	srv := api.New(api.Config{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSOrigins,
	}, api.Deps{
		Sessions:  attendance.NewSessions(st, st, clock, cfg.QRTokenTTL),
		Verifier:  attendance.NewVerifier(st, st, detector, clock),
		Excuses:   attendance.NewExcuses(st, st, clock),
		Directory: st,
		Documents: docs,
		Alerts:    backend.Alerts,
		Metrics:   m,
		Gatherer:  reg,
		Health:    health,
		Logger:    log,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	log.Info("server exited")
	return nil
}
