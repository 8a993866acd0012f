package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct{ status, message string }

func (c staticChecker) CheckReady() (string, string) { return c.status, c.message }

func readiness(t *testing.T, checkers ...NamedChecker) (int, healthReadyResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	NewHealthHandler(checkers...).HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp healthReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealthReady(t *testing.T) {
	code, resp := readiness(t,
		NamedChecker{Name: "rowstore", Checker: staticChecker{"ok", "sheets reachable"}},
		NamedChecker{Name: "registry", Checker: staticChecker{"ok", "3 collaborators"}},
	)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "checkin-module", resp.Service)
	assert.Equal(t, "sheets reachable", resp.Checks["rowstore"].Message)

	code, resp = readiness(t,
		NamedChecker{Name: "rowstore", Checker: staticChecker{"ok", ""}},
		NamedChecker{Name: "jwks", Checker: staticChecker{"degraded", "no keys"}},
	)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Status)

	code, resp = readiness(t,
		NamedChecker{Name: "rowstore", Checker: staticChecker{"fail", "timeout"}},
		NamedChecker{Name: "redis", Checker: nil},
	)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "fail", resp.Status)
	assert.Equal(t, "not initialized", resp.Checks["redis"].Message)
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, "ok", overallStatus())
	assert.Equal(t, "ok", overallStatus("ok", "ok"))
	assert.Equal(t, "degraded", overallStatus("ok", "degraded"))
	assert.Equal(t, "fail", overallStatus("degraded", "fail", "ok"))
}
