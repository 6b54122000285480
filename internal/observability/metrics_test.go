package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/framebridge/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordMessage(DirectionOutbound, "navigate", OutcomeQueued)
	RecordHandshake(12 * time.Millisecond)
	RecordSync("parent -> child", "sent")
	RecordHTTPRequest("GET", "/frame", 101)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "framebridge_bridge_messages_total") {
		t.Fatalf("bridge counter not exported")
	}
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	testlog.Start(t)
	capture := testlog.NewCapture()
	h := RequestLogger(capture.Logger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/frame", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(capture.Lines(zerolog.WarnLevel)) != 1 {
		t.Fatalf("expected one warn line for 403")
	}
}
