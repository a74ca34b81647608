package netcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		ping time.Duration
		ok   bool
		want Quality
	}{
		{50 * time.Millisecond, true, QualityGood},
		{150 * time.Millisecond, true, QualityGood},
		{151 * time.Millisecond, true, QualityFair},
		{500 * time.Millisecond, true, QualityFair},
		{501 * time.Millisecond, true, QualityPoor},
		{2 * time.Second, true, QualityPoor},
		{10 * time.Millisecond, false, QualityOffline},
	}
	for _, tt := range tests {
		if got := Classify(tt.ping, tt.ok); got != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.ping, tt.ok, got, tt.want)
		}
	}
}

func drain(t *testing.T, p *Prober) Status {
	t.Helper()
	select {
	case s := <-p.updates:
		return s
	default:
		t.Fatal("no status published")
		return Status{}
	}
}

func TestPublishDebounce(t *testing.T) {
	p := New("http://unused", time.Second)
	base := time.Now()

	// First bad sample starts the clock but is not degraded yet.
	p.publish(Status{Quality: QualityPoor}, base)
	if s := drain(t, p); s.Degraded {
		t.Error("first bad sample flagged degraded")
	}

	// Still inside the debounce window.
	p.publish(Status{Quality: QualityOffline}, base.Add(DegradeDebounce-time.Millisecond))
	if s := drain(t, p); s.Degraded {
		t.Error("sample inside debounce window flagged degraded")
	}

	// Past the window.
	p.publish(Status{Quality: QualityPoor}, base.Add(DegradeDebounce))
	if s := drain(t, p); !s.Degraded {
		t.Error("sample past debounce window not flagged degraded")
	}

	// Recovery resets the clock: a later bad sample starts over.
	p.publish(Status{Quality: QualityGood}, base.Add(DegradeDebounce+time.Second))
	if s := drain(t, p); s.Degraded {
		t.Error("good sample flagged degraded")
	}
	p.publish(Status{Quality: QualityPoor}, base.Add(DegradeDebounce+2*time.Second))
	if s := drain(t, p); s.Degraded {
		t.Error("bad sample after recovery flagged degraded immediately")
	}
}

func TestPublishDropsWhenConsumerLags(t *testing.T) {
	p := New("http://unused", time.Second)
	for i := 0; i < cap(p.updates)+5; i++ {
		p.publish(Status{Quality: QualityGood}, time.Now())
	}
	if len(p.updates) != cap(p.updates) {
		t.Errorf("buffered = %d, want %d", len(p.updates), cap(p.updates))
	}
}

func TestProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","timestamp":%d}`, time.Now().UnixMilli())
	}))
	defer healthy.Close()

	p := New(healthy.URL, time.Second)
	if !p.probe(context.Background()) {
		t.Error("probe against healthy endpoint failed")
	}

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"draining","timestamp":0}`)
	}))
	defer sick.Close()

	p = New(sick.URL, time.Second)
	if p.probe(context.Background()) {
		t.Error("probe accepted a non-ok status")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	p = New(down.URL, time.Second)
	if p.probe(context.Background()) {
		t.Error("probe accepted a 503")
	}

	p = New("http://127.0.0.1:1", time.Second)
	if p.probe(context.Background()) {
		t.Error("probe accepted an unreachable endpoint")
	}
}

func TestRunPublishesAndStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","timestamp":%d}`, time.Now().UnixMilli())
	}))
	defer srv.Close()

	p := New(srv.URL, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	select {
	case s := <-p.Updates():
		if s.Quality == QualityOffline {
			t.Errorf("quality = %s against a healthy endpoint", s.Quality)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}

	cancel()
	for range p.Updates() {
	}
	// Channel closed: Run exited.
}
