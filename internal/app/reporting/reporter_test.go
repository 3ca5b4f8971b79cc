package reporting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checklist-api/project/internal/app/checklist"
	"github.com/checklist-api/project/internal/platform/config"
	"github.com/checklist-api/project/internal/platform/metrics"
)

type fakeSummarizer struct {
	summary checklist.Summary
	err     error
	calls   atomic.Int32
	loc     atomic.Pointer[time.Location]
}

func (f *fakeSummarizer) Summary(_ context.Context, q checklist.SummaryQuery) (checklist.Summary, error) {
	f.calls.Add(1)
	f.loc.Store(q.Location)
	return f.summary, f.err
}

func TestRunOnceSetsGauges(t *testing.T) {
	svc := &fakeSummarizer{summary: checklist.Summary{Today: 2, PastDue: 3, ThisWeek: 4, PastWeek: 1, ThisMonth: 5, PastMonth: 6, Total: 9}}
	r, err := New(config.ReportingConfig{Schedule: "@every 1h", Timezone: "Asia/Jakarta"}, svc, zerolog.Nop())
	require.NoError(t, err)

	got, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, svc.summary, got)
	assert.Equal(t, "Asia/Jakarta", svc.loc.Load().String())

	assert.Equal(t, 2.0, itemsDue.Value("today"))
	assert.Equal(t, 3.0, itemsDue.Value("past_due"))
	assert.Equal(t, 9.0, itemsDue.Value("total"))
	assert.Greater(t, lastRun.Value(), 0.0)
	assert.Contains(t, metrics.Default.Expose(), `checklist_items_due{bucket="past_month"} 6`)
}

func TestRunOnceError(t *testing.T) {
	svc := &fakeSummarizer{err: errors.New("db down")}
	r, err := New(config.ReportingConfig{Schedule: "@every 1h"}, svc, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.ErrorContains(t, err, "db down")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(config.ReportingConfig{Schedule: "@every 1h", Timezone: "Mars/Olympus"}, &fakeSummarizer{}, zerolog.Nop())
	require.Error(t, err)

	_, err = New(config.ReportingConfig{Schedule: "@every 1h"}, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestStartRunsOnSchedule(t *testing.T) {
	svc := &fakeSummarizer{}
	r, err := New(config.ReportingConfig{Schedule: "@every 1s"}, svc, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, r.Start())
	require.NoError(t, r.Start())

	assert.Eventually(t, func() bool { return svc.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Stop(ctx)
	r.Stop(ctx)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r, err := New(config.ReportingConfig{Schedule: "not a schedule"}, &fakeSummarizer{}, zerolog.Nop())
	require.NoError(t, err)
	require.Error(t, r.Start())
}
