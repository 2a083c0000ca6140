package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(oracleRequests.WithLabelValues(OutcomeError))
	ObserveOracle(OutcomeError, 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(oracleRequests.WithLabelValues(OutcomeError)))

	g := testutil.ToFloat64(readingsGranted)
	ReadingGranted()
	assert.Equal(t, g+1, testutil.ToFloat64(readingsGranted))

	DawnNotice("webhook")
	assert.GreaterOrEqual(t, testutil.ToFloat64(dawnNotices.WithLabelValues("webhook")), 1.0)

	SetActiveJourneys(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(activeJourneys))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ReadingGranted()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "arcana_readings_granted_total"))
}
