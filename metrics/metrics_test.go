package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsCounter(t *testing.T) {
	before := testutil.ToFloat64(Records.WithLabelValues(ResultEnriched))
	Records.WithLabelValues(ResultEnriched).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Records.WithLabelValues(ResultEnriched)))
}

func TestHandler(t *testing.T) {
	ModelGeneration.WithLabelValues("geo").Set(3)
	EnrichCalls.WithLabelValues("geo", ResultApplied).Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `semenrich_model_generation{model="geo"} 3`)
	assert.Contains(t, string(body), `semenrich_enrich_calls_total{capability="geo",result="applied"}`)
}
