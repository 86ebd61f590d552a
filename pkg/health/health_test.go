package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"no checks", nil, StatusUp},
		{"all up", map[string]Check{
			"index": Probe(func(context.Context) error { return nil }),
		}, StatusUp},
		{"degraded", map[string]Check{
			"index": Probe(func(context.Context) error { return nil }),
			"lag":   func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} },
		}, StatusDegraded},
		{"down wins", map[string]Check{
			"index": Probe(func(context.Context) error { return errors.New("closed") }),
			"lag":   func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} },
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("%d components reported, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", Probe(func(context.Context) error { return errors.New("index is closed") }))
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if got := report.Components["index"].Message; got != "index is closed" {
		t.Errorf("message = %q", got)
	}
}
