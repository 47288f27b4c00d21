package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"campusattend/internal/absentee"
	"campusattend/internal/app"
	"campusattend/internal/config"
	"campusattend/internal/logging"
	"campusattend/internal/metrics"
	"campusattend/internal/notify"
)

var version = "dev"

// The worker runs the absentee monitor and turns flagged check-ins into
// instructor notifications.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before the environment")
	once := pflag.Bool("once", false, "run a single absentee scan and exit")
	metricsAddr := pflag.String("metrics-addr", ":9091", "address serving /metrics; empty disables it")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, flush := logging.New(logging.Options{
		Service:      "attendance-worker",
		Env:          cfg.Env,
		Production:   cfg.Production(),
		RollbarToken: cfg.RollbarToken,
		CodeVersion:  version,
	})

	if err := run(cfg, log, *once, *metricsAddr); err != nil {
		log.Error("worker exited", "error", err)
		flush()
		os.Exit(1)
	}
	flush()
}

func run(cfg config.App, log *slog.Logger, once bool, metricsAddr string) error {
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

	st := backend.Store
	sender := notify.NewQueueSender(backend.Notifications, m)
	monitor, err := absentee.New(absentee.Deps{
		Directory: st,
		Roster:    st,
		Catalog:   st,
		Stats:     st,
		Notifier:  sender,
		Clock:     clockwork.NewRealClock(),
		Logger:    log,
		Metrics:   m,
	}, absentee.Config{
		ThresholdPercent: cfg.Absentee.ThresholdPercent,
		Schedule:         cfg.Absentee.Schedule,
		RetryCooldown:    cfg.Absentee.RetryCooldown,
	})
	if err != nil {
		return err
	}

	if once {
		res, err := monitor.ScanOnce(ctx)
		if err != nil {
			return errors.Wrap(err, "absentee scan")
		}
		log.Info("absentee scan finished", "students", res.Students, "sections", res.Sections,
			"warned", res.Warned, "failed", res.Failed)
		return nil
	}

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	monitor.Start(ctx)

	alerts := notify.NewFlaggedAlerts(st, st, sender, log.With("component", "flagged-alerts"))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := alerts.Run(ctx, backend.Alerts); err != nil {
			log.Error("flagged alerts stopped", "error", err)
		}
	}()

	log.Info("worker started")
	<-ctx.Done()
	log.Info("shutdown signal received")

	monitor.Stop()
	wg.Wait()
	log.Info("worker stopped")
	return nil
}
