package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/checklist-api/project/internal/app/checklist"
	"github.com/checklist-api/project/internal/platform/config"
	"github.com/checklist-api/project/internal/platform/metrics"
)

const runTimeout = 30 * time.Second

var (
	itemsDue = metrics.NewGaugeVec(metrics.Opts{
		Name: "checklist_items_due",
		Help: "Items per due-date bucket at the last summary run.",
	}, []string{"bucket"})
	lastRun = metrics.NewGauge(metrics.Opts{
		Name: "checklist_summary_last_run_timestamp_seconds",
		Help: "Unix time of the last successful summary run.",
	})
)

func init() {
	metrics.Default.MustRegister(itemsDue, lastRun)
}

type Summarizer interface {
	Summary(ctx context.Context, q checklist.SummaryQuery) (checklist.Summary, error)
}

// Reporter periodically computes the item summary and exports it as gauges.
type Reporter struct {
	svc      Summarizer
	log      zerolog.Logger
	loc      *time.Location
	schedule string

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg config.ReportingConfig, svc Summarizer, log zerolog.Logger) (*Reporter, error) {
	if svc == nil {
		return nil, errors.New("reporting: summarizer is required")
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("reporting timezone %q: %w", cfg.Timezone, err)
		}
	}
	return &Reporter{
		svc:      svc,
		log:      log.With().Str("component", "reporter").Logger(),
		loc:      loc,
		schedule: cfg.Schedule,
	}, nil
}

// Start schedules the job. Calling Start twice is a no-op.
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(r.loc))
	if _, err := c.AddFunc(r.schedule, r.tick); err != nil {
		return fmt.Errorf("scheduling summary %q: %w", r.schedule, err)
	}
	c.Start()
	r.c = c
	r.log.Info().Str("schedule", r.schedule).Str("timezone", r.loc.String()).Msg("summary reporter started")
	return nil
}

// Stop halts scheduling and waits for a running job, up to ctx.
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		r.log.Warn().Msg("summary reporter did not stop in time")
	}
}

func (r *Reporter) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.log.Error().Err(err).Msg("summary run failed")
	}
}

// RunOnce computes the summary across all domains and updates the gauges.
func (r *Reporter) RunOnce(ctx context.Context) (checklist.Summary, error) {
	s, err := r.svc.Summary(ctx, checklist.SummaryQuery{Location: r.loc})
	if err != nil {
		return checklist.Summary{}, fmt.Errorf("computing summary: %w", err)
	}

	for bucket, n := range map[string]int{
		"today":      s.Today,
		"past_due":   s.PastDue,
		"this_week":  s.ThisWeek,
		"past_week":  s.PastWeek,
		"this_month": s.ThisMonth,
		"past_month": s.PastMonth,
		"total":      s.Total,
	} {
		itemsDue.Set(float64(n), bucket)
	}
	lastRun.Set(float64(time.Now().Unix()))

	r.log.Info().
		Int("today", s.Today).
		Int("past_due", s.PastDue).
		Int("this_week", s.ThisWeek).
		Int("total", s.Total).
		Msg("item summary")
	return s, nil
}
