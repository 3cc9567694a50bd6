package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	before := testutil.ToFloat64(stepsTotal.WithLabelValues("test-plan", "Token", StatusDeployed))
	gasBefore := testutil.ToFloat64(gasUsedTotal.WithLabelValues("test-plan", "Token"))

	ObserveStep("test-plan", "Token", StatusDeployed, 2*time.Second, 1_500_000)

	assert.Equal(t, before+1, testutil.ToFloat64(stepsTotal.WithLabelValues("test-plan", "Token", StatusDeployed)))
	assert.Equal(t, gasBefore+1_500_000, testutil.ToFloat64(gasUsedTotal.WithLabelValues("test-plan", "Token")))
}

func TestObserveStep_SkippedRecordsOnlyCount(t *testing.T) {
	gasBefore := testutil.ToFloat64(gasUsedTotal.WithLabelValues("skip-plan", "Token"))

	ObserveStep("skip-plan", "Token", StatusSkipped, time.Minute, 99)

	assert.Equal(t, float64(1), testutil.ToFloat64(stepsTotal.WithLabelValues("skip-plan", "Token", StatusSkipped)))
	assert.Equal(t, gasBefore, testutil.ToFloat64(gasUsedTotal.WithLabelValues("skip-plan", "Token")))
}

func TestHandler(t *testing.T) {
	ObserveStep("handler-plan", "Sale", StatusFailed, time.Second, 0)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fieldcoin_deploy_steps_total{plan="handler-plan",status="failed",step="Sale"} 1`)
}
