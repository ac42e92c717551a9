package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth       { return ComponentHealth{Status: StatusUp} }
func degraded(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} }

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("a", up)
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("b", degraded)
	assert.Equal(t, StatusDegraded, c.Run(context.Background()).Status)

	c.Register("c", PingCheck(func(context.Context) error { return errors.New("unreachable") }))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	require.Contains(t, report.Components, "c")
	assert.Equal(t, "unreachable", report.Components["c"].Message)
	assert.NotEmpty(t, report.Components["a"].Latency)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", PingCheck(func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusUp, report.Status)

	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("down") }))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSlowCheckCountsAsDown(t *testing.T) {
	c := NewChecker(WithCheckTimeout(20 * time.Millisecond))
	release := make(chan struct{})
	defer close(release)
	c.Register("index-shard-0", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("redis", up)

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["index-shard-0"].Message, "timed out")
	assert.Equal(t, StatusUp, report.Components["redis"].Status)
}

func TestReportCarriesDetails(t *testing.T) {
	c := NewChecker()
	c.Register("index-shard-1", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp, Details: map[string]any{"segments": 3}}
	})

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.EqualValues(t, 3, report.Components["index-shard-1"].Details["segments"])
}
