package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/checklist-api/project/internal/platform/config"
	"github.com/checklist-api/project/internal/platform/logging"
	"github.com/checklist-api/project/internal/platform/metrics"
)

var (
	loadgenRequestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "checklist_loadgen_requests_total",
		Help: "HTTP requests sent by the load generator.",
	}, []string{"endpoint", "method", "status", "outcome"})

	loadgenActionsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "checklist_loadgen_actions_total",
		Help: "Load generator actions by outcome.",
	}, []string{"action", "outcome"})

	loadgenWorkers = metrics.NewGauge(metrics.Opts{
		Name: "checklist_loadgen_workers",
		Help: "Load generator workers currently sending requests.",
	})
)

func init() {
	metrics.Default.MustRegister(loadgenRequestsTotal, loadgenActionsTotal, loadgenWorkers)
}

type loadgenConfig struct {
	Target      string
	APIKey      string
	Workers     int
	Duration    time.Duration
	Rate        float64
	StartupWait time.Duration
	Timeout     time.Duration
}

type loadgenRunner struct {
	cfg    loadgenConfig
	log    zerolog.Logger
	client *http.Client
	runID  string

	templateID string

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
}

// worker owns the checklists it created; assignments only target those.
type worker struct {
	index int
	rng   *rand.Rand

	mu         sync.Mutex
	checklists []string
}

func newLoadgenCommand() *cobra.Command {
	cfg := loadgenConfig{}
	var logLevel string
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive a running API with checklist, item and assignment traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Workers <= 0 {
				return errors.New("--workers must be > 0")
			}
			if cfg.Rate <= 0 {
				return errors.New("--rate must be > 0")
			}
			log := logging.NewWithWriter(config.LogConfig{Level: logLevel, Format: "console"}, "checklist-loadgen", cmd.ErrOrStderr())
			r := &loadgenRunner{
				cfg:    cfg,
				log:    log,
				client: &http.Client{Timeout: cfg.Timeout},
				runID:  strconv.FormatInt(time.Now().UTC().UnixNano(), 36),
			}
			ok, failed, err := r.run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "success_requests=%d error_requests=%d\n", ok, failed)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Target, "target", "http://localhost:8080", "base URL of the API")
	flags.StringVar(&cfg.APIKey, "api-key", "", "API key sent in the Authorization header")
	flags.IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	flags.DurationVar(&cfg.Duration, "duration", time.Minute, "how long to generate load")
	flags.Float64Var(&cfg.Rate, "rate", 50, "requests per second across all workers")
	flags.DurationVar(&cfg.StartupWait, "startup-wait", 30*time.Second, "how long to wait for /readyz")
	flags.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "per-request timeout")
	flags.StringVar(&logLevel, "log-level", "info", "log level")
	return cmd
}

func (r *loadgenRunner) run(parent context.Context) (int64, int64, error) {
	r.cfg.Target = strings.TrimRight(r.cfg.Target, "/")
	if err := r.waitReady(parent); err != nil {
		return 0, 0, fmt.Errorf("target not ready: %w", err)
	}
	if err := r.setupTemplate(parent); err != nil {
		return 0, 0, fmt.Errorf("creating template: %w", err)
	}

	ctx, cancel := context.WithTimeout(parent, r.cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(r.cfg.Rate), r.cfg.Workers)
	r.log.Info().
		Int("workers", r.cfg.Workers).
		Float64("rate", r.cfg.Rate).
		Dur("duration", r.cfg.Duration).
		Str("template_id", r.templateID).
		Msg("load generation started")

	var wg sync.WaitGroup
	for i := range r.cfg.Workers {
		w := &worker{index: i, rng: rand.New(rand.NewSource(time.Now().UnixNano() + int64(i*7)))}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runWorker(ctx, w, limiter)
		}()
	}
	wg.Wait()

	ok, failed := r.requestsSuccess.Load(), r.requestsError.Load()
	r.log.Info().Int64("success_requests", ok).Int64("error_requests", failed).Msg("load generation complete")
	return ok, failed, nil
}

func (r *loadgenRunner) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupWait)
	var lastErr error
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Target+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("status=%d", resp.StatusCode)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

type resourceID struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (r *loadgenRunner) setupTemplate(ctx context.Context) error {
	var out resourceID
	_, err := r.requestJSON(ctx, "create_template", http.MethodPost, "/checklists/templates", map[string]any{
		"data": map[string]any{"attributes": map[string]any{
			"name":      "loadgen " + r.runID,
			"checklist": map[string]any{"description": "load", "due_interval": 3, "due_unit": "hour"},
			"items": []map[string]any{
				{"description": "first", "urgency": 2, "due_interval": 40, "due_unit": "minute"},
				{"description": "second", "urgency": 3, "due_interval": 30, "due_unit": "minute"},
			},
		}},
	}, &out, http.StatusCreated)
	if err != nil {
		return err
	}
	if out.Data.ID == "" {
		return errors.New("empty template id")
	}
	r.templateID = out.Data.ID
	return nil
}

func (r *loadgenRunner) runWorker(ctx context.Context, w *worker, limiter *rate.Limiter) {
	loadgenWorkers.Inc()
	defer loadgenWorkers.Dec()
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		r.runAction(ctx, w)
	}
}

func (r *loadgenRunner) runAction(ctx context.Context, w *worker) {
	checklistID, ok := w.randomChecklist()
	choice := w.rng.Float64()
	switch {
	case !ok || choice < 0.4:
		r.createChecklist(ctx, w)
	case choice < 0.7:
		r.createItem(ctx, w, checklistID)
	default:
		r.assignTemplate(ctx, w)
	}
}

func (w *worker) objectID(runID string) string {
	return fmt.Sprintf("loadgen-%s-%d", runID, w.index)
}

func (r *loadgenRunner) createChecklist(ctx context.Context, w *worker) {
	var out resourceID
	_, err := r.requestJSON(ctx, "create_checklist", http.MethodPost, "/checklists", map[string]any{
		"data": map[string]any{"attributes": map[string]any{
			"object_domain": "loadgen",
			"object_id":     w.objectID(r.runID),
			"description":   fmt.Sprintf("Load checklist %d", w.rng.Intn(1_000_000)),
			"due":           time.Now().UTC().Add(24 * time.Hour).Format("2006-01-02 15:04:05"),
			"items":         []string{"seed"},
		}},
	}, &out, http.StatusCreated)
	if err != nil {
		loadgenActionsTotal.WithLabelValues("create_checklist", "error").Inc()
		return
	}
	w.addChecklist(out.Data.ID)
	loadgenActionsTotal.WithLabelValues("create_checklist", "success").Inc()
}

func (r *loadgenRunner) createItem(ctx context.Context, w *worker, checklistID string) {
	_, err := r.requestJSON(ctx, "create_item", http.MethodPost, "/checklists/"+checklistID+"/items", map[string]any{
		"data": map[string]any{"attributes": map[string]any{
			"description": fmt.Sprintf("Load item %d", w.rng.Intn(1_000_000)),
			"due":         time.Now().UTC().Add(time.Duration(w.rng.Intn(72)) * time.Hour).Format("2006-01-02 15:04:05"),
		}},
	}, nil, http.StatusCreated)
	if err != nil {
		loadgenActionsTotal.WithLabelValues("create_item", "error").Inc()
		return
	}
	loadgenActionsTotal.WithLabelValues("create_item", "success").Inc()
}

func (r *loadgenRunner) assignTemplate(ctx context.Context, w *worker) {
	_, err := r.requestJSON(ctx, "assign_template", http.MethodPost, "/checklists/templates/"+r.templateID+"/assigns", map[string]any{
		"data": []map[string]any{
			{"attributes": map[string]any{"object_domain": "loadgen", "object_id": w.objectID(r.runID)}},
		},
	}, nil, http.StatusOK)
	if err != nil {
		loadgenActionsTotal.WithLabelValues("assign_template", "error").Inc()
		return
	}
	loadgenActionsTotal.WithLabelValues("assign_template", "success").Inc()
}

func (r *loadgenRunner) requestJSON(ctx context.Context, endpoint, method, path string, payload, out any, expected int) (int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.Target+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		loadgenRequestsTotal.WithLabelValues(endpoint, method, "0", "error").Inc()
		r.requestsError.Add(1)
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	status := strconv.Itoa(resp.StatusCode)
	if err != nil || resp.StatusCode != expected {
		loadgenRequestsTotal.WithLabelValues(endpoint, method, status, "error").Inc()
		r.requestsError.Add(1)
		if err == nil {
			err = fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, truncate(string(body), 240))
		}
		r.log.Debug().Err(err).Str("endpoint", endpoint).Msg("request failed")
		return resp.StatusCode, err
	}

	loadgenRequestsTotal.WithLabelValues(endpoint, method, status, "success").Inc()
	r.requestsSuccess.Add(1)
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (w *worker) addChecklist(id string) {
	if id == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checklists = append(w.checklists, id)
}

func (w *worker) randomChecklist() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.checklists) == 0 {
		return "", false
	}
	return w.checklists[w.rng.Intn(len(w.checklists))], true
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
