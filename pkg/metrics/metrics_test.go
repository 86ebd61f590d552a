package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DocIndexed()
	m.DocRejected("validation")
	m.DocDeleted()
	m.Flush("ok", time.Millisecond)
	m.Commit("ok")
	m.Merge("ok", time.Millisecond)
	m.SetLiveSegments(3)
	m.CorruptSegment()
	m.Query("ok", "miss", 2, time.Millisecond)
	m.CacheHit()
	m.CacheMiss()
}

func TestRecording(t *testing.T) {
	m := New(nil)
	m.DocIndexed()
	m.DocIndexed()
	m.DocRejected("validation")
	m.SetLiveSegments(4)
	m.Query("empty", "disabled", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 2 {
		t.Errorf("docs indexed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DocsRejectedTotal.WithLabelValues("validation")); got != 1 {
		t.Errorf("docs rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LiveSegments); got != 4 {
		t.Errorf("live segments = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("empty")); got != 1 {
		t.Errorf("queries = %v, want 1", got)
	}
}

func TestPrivateRegistriesDoNotCollide(t *testing.T) {
	a, b := New(nil), New(nil)
	a.DocIndexed()
	if got := testutil.ToFloat64(b.DocsIndexedTotal); got != 0 {
		t.Errorf("second registry saw %v docs", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.CacheHit()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "search_cache_hits_total 1") {
		t.Errorf("scrape output missing cache hits:\n%s", rec.Body.String())
	}
}
