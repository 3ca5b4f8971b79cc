package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/checklist-api/project/internal/app/checklist"
	"github.com/checklist-api/project/internal/app/checklistapi"
	"github.com/checklist-api/project/internal/app/reporting"
	platformauth "github.com/checklist-api/project/internal/platform/auth"
	"github.com/checklist-api/project/internal/platform/config"
	"github.com/checklist-api/project/internal/platform/logging"
	"github.com/checklist-api/project/internal/platform/metrics"
	"github.com/checklist-api/project/internal/platform/natsutil"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logging.New(cfg.Log, serviceName))
		},
	}
}

func serve(runCtx context.Context, cfg *config.Config, log zerolog.Logger) error {
	repo, closeRepo, err := openRepository(runCtx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	var (
		publish checklist.PublishFunc
		bus     *natsutil.Client
	)
	if cfg.NATS.Enabled {
		bus, err = natsutil.ConnectJetStreamWithRetry(cfg.NATS.URL, cfg.NATS.Name, cfg.NATS.ConnectTimeout)
		if err != nil {
			return err
		}
		defer bus.Close()
		publish = natsutil.JetStreamPublisher{JS: bus.JS}.Publish
		log.Info().Str("url", cfg.NATS.URL).Msg("publishing checklist events")
	}

	service := checklist.NewService(repo, publish, log)
	handler := checklistapi.NewHandler(service, platformauth.NewVerifier(cfg.Auth.APIKey, cfg.Auth.APIKeyHash), log, checklistapi.Options{
		BaseURL:       cfg.HTTP.BaseURL,
		AllowedOrigin: cfg.HTTP.AllowedOrigin,
		RateLimit:     cfg.HTTP.RateLimit,
		RateBurst:     cfg.HTTP.RateBurst,
	})

	if cfg.Reporting.Enabled {
		reporter, err := reporting.New(cfg.Reporting, service, log)
		if err != nil {
			return err
		}
		if err := reporter.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reporter.Stop(stopCtx)
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), service, bus); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeOK(w)
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	log.Info().Str("addr", cfg.HTTP.Addr).Str("driver", cfg.Storage.Driver).Msg("checklist API listening")
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("checklist API stopped")
	return nil
}

func checkReadiness(ctx context.Context, service *checklist.Service, bus *natsutil.Client) error {
	if bus != nil {
		if err := bus.Connected(); err != nil {
			return err
		}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	return service.Ping(checkCtx)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
