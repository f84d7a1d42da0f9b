package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMuxServesVars(t *testing.T) {
	TriggersFired.Add(1)
	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "triggers_fired") {
		t.Fatalf("triggers_fired missing from vars")
	}

	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok" {
		t.Fatalf("healthz body=%q", rec.Body.String())
	}
}

func TestHealthzFollowsEngine(t *testing.T) {
	var engineErr error
	SetHooks(&Hooks{
		Health: func() error { return engineErr },
		Status: func() any { return map[string]string{"state": "AGUARDANDO_GATILHO"} },
	})
	defer SetHooks(nil)

	rec := httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy code=%d", rec.Code)
	}

	engineErr = errors.New("loop capture panic: boom")
	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("dead engine code=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "capture") {
		t.Fatalf("healthz body=%q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	if !strings.Contains(rec.Body.String(), `"engine": {"state":"AGUARDANDO_GATILHO"}`) {
		t.Fatalf("engine status missing from vars: %s", rec.Body.String())
	}
}
