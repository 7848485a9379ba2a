package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSessionStart()
	if got := promtest.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}

	m.RecordSessionEnd(12.5)
	if got := promtest.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("sessions_active = %v, want 0", got)
	}
	if got := promtest.ToFloat64(m.SessionsStarted); got != 1 {
		t.Errorf("sessions_started_total = %v, want 1", got)
	}
}

func TestRecordRecognition(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRecognition("preview", nil, 0.3)
	m.RecordRecognition("preview", errors.New("boom"), 0.1)
	m.RecordRecognition("final", nil, 4)

	if got := promtest.ToFloat64(m.RecognitionErrors.WithLabelValues("preview")); got != 1 {
		t.Errorf("preview errors = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.RecognitionErrors.WithLabelValues("final")); got != 0 {
		t.Errorf("final errors = %v, want 0", got)
	}
	if got := promtest.CollectAndCount(m.RecognitionLatency); got != 2 {
		t.Errorf("latency series = %d, want 2", got)
	}
}

func TestChunkCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordChunk("silence")
	m.RecordChunk("silence")
	m.RecordChunk("max_duration")
	m.RecordDiscarded(0)
	m.RecordDiscarded(2)
	m.RecordGated()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"silence", m.ChunksEmitted.WithLabelValues("silence"), 2},
		{"max_duration", m.ChunksEmitted.WithLabelValues("max_duration"), 1},
		{"discarded", m.ChunksDiscarded, 2},
		{"gated", m.ChunksGated, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := promtest.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordParagraphBreak()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "quilldict_paragraph_breaks_total 1") {
		t.Errorf("metrics output missing paragraph break counter:\n%s", body)
	}
}
