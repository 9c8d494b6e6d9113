package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("Set", OutcomeOK, time.Millisecond)
	m.RecordRequest("Set", OutcomeOK, time.Millisecond)
	m.RecordRequest("Set", OutcomeRejected, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("Set", OutcomeOK)); got != 2 {
		t.Fatalf("ok requests: got %v want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("Set", OutcomeRejected)); got != 1 {
		t.Fatalf("rejected requests: got %v want 1", got)
	}
}

func TestConnectionsAndReplication(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	if got := testutil.ToFloat64(m.activeConnections); got != 1 {
		t.Fatalf("active connections: got %v want 1", got)
	}

	m.RecordReplication(nil, time.Millisecond)
	m.RecordReplication(errors.New("connection refused"), time.Millisecond)
	if got := testutil.ToFloat64(m.replications.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("failed replications: got %v want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("Get", OutcomeOK, time.Millisecond)
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordProtocolError()
	m.RecordReplication(nil, 0)
	m.SetStoreSize(1, 2)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetStoreSize(3, 1024)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"replkv_keys 3", "replkv_log_size_bytes 1024"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
