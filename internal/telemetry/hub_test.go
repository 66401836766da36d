package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/sdragc/internal/logging"
)

func newTestHub(limit int) *Hub {
	return NewHub(limit, logging.New(logging.Debug, logging.Text, io.Discard))
}

func report(block uint64, gainDB float64) GainReport {
	return GainReport{Block: block, GainDB: gainDB, GainStep: int(gainDB / 5)}
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := newTestHub(3)
	for i := uint64(1); i <= 5; i++ {
		hub.ReportGain(report(i, 40))
	}
	hist := hub.History()
	if len(hist) != 3 || hist[0].Block != 3 || hist[2].Block != 5 {
		t.Fatalf("expected blocks 3..5, got %+v", hist)
	}
	latest, ok := hub.Latest()
	if !ok || latest.Block != 5 {
		t.Fatalf("expected latest block 5, got %+v", latest)
	}
}

func TestHubSubscribe(t *testing.T) {
	hub := newTestHub(10)
	ch, cancel := hub.Subscribe()
	hub.ReportGain(report(1, 30))

	select {
	case got := <-ch:
		if got.Block != 1 {
			t.Fatalf("unexpected report %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("no report delivered")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// reporting after unsubscribe must not panic
	hub.ReportGain(report(2, 30))
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := newTestHub(100)
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 50; i++ {
			hub.ReportGain(report(i, 10))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("reporting blocked on a full subscriber")
	}
}

func TestHandleHistory(t *testing.T) {
	hub := newTestHub(10)
	hub.ReportGain(report(1, 25))

	rr := httptest.NewRecorder()
	NewMux(hub).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	var got []GainReport
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].GainDB != 25 {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestHandleSummary(t *testing.T) {
	hub := newTestHub(10)
	mux := NewMux(hub)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before any report, got %d", rr.Code)
	}

	r := report(4, 40)
	r.GainSeconds = []GainSeconds{{Step: 8, GainDB: 40, Seconds: 4}}
	hub.ReportGain(r)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	var got Summary
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.TotalSeconds != 4 || got.MedianGainDB != 40 || len(got.GainSeconds) != 1 {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := newTestHub(10)
	for i := uint64(1); i <= 6; i++ {
		hub.ReportGain(report(i, 10))
	}
	mux := NewMux(hub)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", strings.NewReader(`{"historyLimit":2}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if hub.ConfigSnapshot().HistoryLimit != 2 || len(hub.History()) != 2 {
		t.Fatalf("history not trimmed to the new limit")
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", strings.NewReader(`{"historyLimit":-1}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config/update", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	var cfg Config
	if err := json.NewDecoder(rr.Body).Decode(&cfg); err != nil || cfg.HistoryLimit != 2 {
		t.Fatalf("unexpected config %+v (%v)", cfg, err)
	}
}

func TestHandleLiveStreamsHistory(t *testing.T) {
	hub := newTestHub(10)
	hub.ReportGain(report(7, 35))
	srv := httptest.NewServer(NewMux(hub))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var got GainReport
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if got.Block != 7 {
			t.Fatalf("expected block 7, got %d", got.Block)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestHandleWSStreamsReports(t *testing.T) {
	hub := newTestHub(10)
	hub.ReportGain(report(1, 20))
	srv := httptest.NewServer(NewMux(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got GainReport
	if err := conn.ReadJSON(&got); err != nil || got.Block != 1 {
		t.Fatalf("expected history block 1, got %+v (%v)", got, err)
	}

	hub.ReportGain(report(2, 25))
	if err := conn.ReadJSON(&got); err != nil || got.Block != 2 {
		t.Fatalf("expected live block 2, got %+v (%v)", got, err)
	}
}

func TestSummarizeWeightsMedianByTime(t *testing.T) {
	r := GainReport{
		GainDB:      30,
		GainChanges: 3,
		GainSeconds: []GainSeconds{
			{Step: 6, GainDB: 30, Seconds: 1},
			{Step: 2, GainDB: 10, Seconds: 1},
			{Step: 4, GainDB: 20, Seconds: 5},
			{Step: 8, GainDB: 40, Seconds: 0},
		},
	}
	s := Summarize(r)
	if s.MedianGainDB != 20 {
		t.Fatalf("expected median 20dB, got %v", s.MedianGainDB)
	}
	if s.TotalSeconds != 7 || len(s.Shares) != 3 {
		t.Fatalf("unexpected totals %+v", s)
	}
	if s.Shares[0].GainDB != 10 || s.GainSeconds[2] != [2]float64{30, 1} {
		t.Fatalf("buckets should be sorted by gain: %+v", s.GainSeconds)
	}
	if math.Abs(s.Shares[1].Percent-500.0/7) > 1e-9 {
		t.Fatalf("unexpected share %v", s.Shares[1].Percent)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(GainReport{GainDB: 12})
	if s.TotalSeconds != 0 || s.MedianGainDB != 0 || s.GainSeconds == nil {
		t.Fatalf("unexpected empty summary %+v", s)
	}
	out, _ := json.Marshal(s)
	if !bytes.Contains(out, []byte(`"gain_seconds":[]`)) {
		t.Fatalf("empty gain seconds should encode as a list: %s", out)
	}
}

func TestStdoutReporterLogsReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutReporter(logging.New(logging.Info, logging.Text, &buf))
	rep := report(3, 42.5)
	rep.LoudUndecoded = 2
	r.ReportGain(rep)

	out := buf.String()
	for _, want := range []string{"adaptive gain", "block=3", "gain_db=42.50", "loud_undecoded=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestMultiReporterSkipsNil(t *testing.T) {
	hub := newTestHub(10)
	MultiReporter{nil, hub}.ReportGain(report(1, 1))
	if len(hub.History()) != 1 {
		t.Fatalf("expected report forwarded to the hub")
	}
}
