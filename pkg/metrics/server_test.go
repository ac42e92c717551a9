package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
	"github.com/stretchr/testify/assert"
)

func TestMuxServesMetricsAndProbes(t *testing.T) {
	checker := health.NewChecker()
	checker.Register("index", health.PingCheck(func(context.Context) error { return nil }))
	srv := httptest.NewServer(NewMux(checker))
	defer srv.Close()

	for _, path := range []string{"/metrics", "/health/live", "/health/ready", "/"} {
		resp, err := http.Get(srv.URL + path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
			resp.Body.Close()
		}
	}
}

func TestMuxWithoutChecker(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMux(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
