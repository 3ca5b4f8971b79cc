package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterVecExposition(t *testing.T) {
	reg := NewRegistry()
	requests := NewCounterVec(Opts{Name: "test_requests_total", Help: "Requests."}, []string{"method", "status"})
	reg.MustRegister(requests)

	requests.WithLabelValues("GET", "200").Inc()
	requests.WithLabelValues("GET", "200").Add(2)
	requests.WithLabelValues("POST", "422").Inc()
	requests.WithLabelValues("POST", "422").Add(-5)
	requests.WithLabelValues("only-one").Inc()

	assert.Equal(t, 3.0, requests.Value("GET", "200"))
	assert.Equal(t, 1.0, requests.Value("POST", "422"))

	out := reg.Expose()
	assert.Contains(t, out, "# TYPE test_requests_total counter\n")
	assert.Contains(t, out, `test_requests_total{method="GET",status="200"} 3`+"\n")
	assert.Contains(t, out, `test_requests_total{method="POST",status="422"} 1`+"\n")
	assert.NotContains(t, out, "only-one")
}

func TestGaugeVecSetAndEscape(t *testing.T) {
	reg := NewRegistry()
	g := NewGaugeVec(Opts{Name: "test_bucket", Help: "Bucket."}, []string{"bucket"})
	reg.MustRegister(g)

	g.Set(4, `past"due`)
	g.Set(7, `past"due`)

	assert.Equal(t, 7.0, g.Value(`past"due`))
	assert.Contains(t, reg.Expose(), `test_bucket{bucket="past\"due"} 7`)
}

func TestGaugeWithoutLabels(t *testing.T) {
	reg := NewRegistry()
	g := NewGauge(Opts{Name: "test_inflight", Help: "In flight."})
	reg.MustRegister(g)

	g.Inc()
	g.Inc()
	g.Dec()
	assert.Equal(t, 1.0, g.Value())

	g.Set(10)
	assert.Contains(t, reg.Expose(), "test_inflight 10\n")
}

func TestMustRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewGauge(Opts{Name: "dup", Help: "x"}))
	assert.Panics(t, func() {
		reg.MustRegister(NewGauge(Opts{Name: "dup", Help: "y"}))
	})
}

func TestHandlerSortsByName(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(
		NewGaugeFunc(Opts{Name: "zz_metric", Help: "z"}, func() float64 { return 1 }),
		NewGaugeFunc(Opts{Name: "aa_metric", Help: "a"}, func() float64 { return 2 }),
	)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body := rec.Body.String()
	assert.Less(t, strings.Index(body, "aa_metric"), strings.Index(body, "zz_metric"))
}
