package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"default timeout", 0, 5 * time.Second},
		{"negative timeout", -time.Second, 5 * time.Second},
		{"custom timeout", 10 * time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.timeout).checkTimeout; got != tt.want {
				t.Errorf("checkTimeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChecker_RegisterAndList(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("job_history", func(context.Context) error { return nil })
	c.RegisterCheck("index", func(context.Context) error { return nil })

	if got, want := c.ListChecks(), []string{"index", "job_history"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListChecks() = %v, want %v", got, want)
	}

	c.UnregisterCheck("index")
	if got := c.ListChecks(); len(got) != 1 {
		t.Errorf("ListChecks() after unregister = %v", got)
	}
}

func TestChecker_CheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{
			"all healthy",
			map[string]CheckFunc{
				"index": func(context.Context) error { return nil },
				"jobs":  func(context.Context) error { return nil },
			},
			StatusReady,
		},
		{
			"one failing",
			map[string]CheckFunc{
				"index": func(context.Context) error { return nil },
				"jobs":  func(context.Context) error { return errors.New("database is locked") },
			},
			StatusDegraded,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			status := c.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("Status = %q, want %q", status.Status, tt.want)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(status.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	status := c.CheckReadiness(context.Background())
	result := status.Checks["slow"]
	if result.Status != StatusUnhealthy || result.Message != "health check timeout" {
		t.Errorf("slow check = %+v, want timeout", result)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	healthy := true
	c.RegisterCheck("engine", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("index unavailable")
	})

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	healthy = false
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}

	var body HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["engine"].Message != "index unavailable" {
		t.Errorf("engine check = %+v", body.Checks["engine"])
	}
}

func TestHandlers_Methods(t *testing.T) {
	c := New(time.Second)
	mux := http.NewServeMux()
	Register(mux, c, "1.2.3", "abc123", "2026-06-01")

	tests := []struct {
		method, path string
		wantCode     int
		wantBody     bool
	}{
		{http.MethodGet, "/health", http.StatusOK, true},
		{http.MethodHead, "/health", http.StatusOK, false},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, true},
		{http.MethodGet, "/version", http.StatusOK, true},
		{http.MethodDelete, "/ready", http.StatusMethodNotAllowed, true},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if (rec.Body.Len() > 0) != tt.wantBody {
				t.Errorf("body length = %d, wantBody %v", rec.Body.Len(), tt.wantBody)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-06-01")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}
