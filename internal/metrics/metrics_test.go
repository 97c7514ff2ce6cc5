package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.RecordAuth("success", 10*time.Millisecond)
	r.RecordAuth("unauthorized", time.Millisecond)
	r.RecordAuth("unauthorized", time.Millisecond)
	r.RecordRegionLookup(true)
	r.RecordRegionLookup(false)
	r.RecordRotationStep("createSecret", "ok", time.Second)
	r.RecordKeypairGeneration(2 * time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.authAttempts.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.authAttempts.WithLabelValues("unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regionLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regionLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rotationSteps.WithLabelValues("createSecret", "ok")))

	count, err := testutil.GatherAndCount(r.registry)
	require.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordAuth("success", time.Millisecond)
		r.RecordRegionLookup(true)
		r.RecordRotationStep("finishSecret", "ok", time.Millisecond)
		r.RecordKeypairGeneration(time.Millisecond)
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.RecordAuth("success", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mailbroker_auth_attempts_total{outcome="success"} 1`))
}
