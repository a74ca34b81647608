// Package netcheck samples connection quality against the health endpoint.
// It is peripheral to the drawing core: results flow to the UI layer over a
// channel and never gate local edits.
package netcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Quality string

const (
	QualityChecking Quality = "checking"
	QualityGood     Quality = "good"
	QualityFair     Quality = "fair"
	QualityPoor     Quality = "poor"
	QualityOffline  Quality = "offline"
)

// Latency classification thresholds.
const (
	goodThreshold = 150 * time.Millisecond
	fairThreshold = 500 * time.Millisecond
)

// DegradeDebounce is how long the connection must stay in a bad state
// before Degraded flips on. A passive quality indicator can show every
// sample; the explicit banner waits for the debounce.
const DegradeDebounce = 3 * time.Second

const probeTimeout = 5 * time.Second

// Status is one quality sample.
type Status struct {
	Quality  Quality
	Ping     time.Duration
	Degraded bool
}

// Classify maps a probe result to a quality level.
func Classify(ping time.Duration, ok bool) Quality {
	switch {
	case !ok:
		return QualityOffline
	case ping <= goodThreshold:
		return QualityGood
	case ping <= fairThreshold:
		return QualityFair
	default:
		return QualityPoor
	}
}

// healthResponse mirrors the health endpoint's body.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Prober periodically probes a health endpoint and publishes Status samples.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
	updates  chan Status

	badSince time.Time
}

// New creates a prober against healthURL sampling every interval.
func New(healthURL string, interval time.Duration) *Prober {
	return &Prober{
		url:      healthURL,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		updates:  make(chan Status, 8),
	}
}

// Updates returns the sample channel. Samples are dropped, not blocked on,
// when the consumer lags.
func (p *Prober) Updates() <-chan Status { return p.updates }

// Run probes until the context is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer close(p.updates)

	for {
		p.publish(p.sample(ctx), time.Now())

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) sample(ctx context.Context) Status {
	start := time.Now()
	ok := p.probe(ctx)
	ping := time.Since(start)
	return Status{Quality: Classify(ping, ok), Ping: ping}
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		slog.Debug("decode health response", "error", err)
		return false
	}
	return health.Status == "ok"
}

// publish applies the degrade debounce and sends the sample.
func (p *Prober) publish(s Status, now time.Time) {
	bad := s.Quality == QualityPoor || s.Quality == QualityOffline
	if bad {
		if p.badSince.IsZero() {
			p.badSince = now
		}
		s.Degraded = now.Sub(p.badSince) >= DegradeDebounce
	} else {
		p.badSince = time.Time{}
	}

	select {
	case p.updates <- s:
	default:
	}
}
