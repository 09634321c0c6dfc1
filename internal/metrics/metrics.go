// Package metrics tracks per-action handler latency.
//
// Each action gets a DDSketch so that percentile summaries stay accurate
// at a fixed relative error without retaining individual samples. The
// registry is purely operational: it feeds the log, never the protocol.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/lexcache/lexcache/config"
	"github.com/lexcache/lexcache/internal/logging"
)

var log = logging.Component("metrics")

// Registry aggregates handler latency by action name.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	accuracy float64
	actions  map[string]*actionMetrics
}

type actionMetrics struct {
	count  int64
	errors int64
	sumMs  float64
	sketch *ddsketch.DDSketch
}

// NewRegistry creates a registry with the given DDSketch relative accuracy.
// A zero accuracy uses the default.
func NewRegistry(accuracy float64) *Registry {
	if accuracy <= 0 {
		accuracy = config.DefaultLatencyAccuracy
	}
	return &Registry{
		accuracy: accuracy,
		actions:  make(map[string]*actionMetrics),
	}
}

// Observe records one handled request for the given action.
func (r *Registry) Observe(action string, elapsed time.Duration, isError bool) {
	ms := float64(elapsed.Microseconds()) / 1000.0

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.actions[action]
	if !ok {
		sketch, err := ddsketch.NewDefaultDDSketch(r.accuracy)
		if err != nil {
			// Accuracy was validated at construction; an error here
			// means the sketch library rejected it anyway. Count the
			// request but skip percentiles.
			m = &actionMetrics{}
		} else {
			m = &actionMetrics{sketch: sketch}
		}
		r.actions[action] = m
	}

	m.count++
	if isError {
		m.errors++
	}
	m.sumMs += ms
	if m.sketch != nil {
		m.sketch.Add(ms)
	}
}

// ActionSummary is a snapshot of one action's latency statistics.
type ActionSummary struct {
	Action string
	Count  int64
	Errors int64
	AvgMs  float64
	P50Ms  float64
	P95Ms  float64
	P99Ms  float64
}

// Snapshot returns summaries for all observed actions, sorted by name.
func (r *Registry) Snapshot() []ActionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ActionSummary, 0, len(r.actions))
	for action, m := range r.actions {
		s := ActionSummary{
			Action: action,
			Count:  m.count,
			Errors: m.errors,
		}
		if m.count > 0 {
			s.AvgMs = m.sumMs / float64(m.count)
		}
		if m.sketch != nil && m.count > 0 {
			s.P50Ms, _ = m.sketch.GetValueAtQuantile(0.50)
			s.P95Ms, _ = m.sketch.GetValueAtQuantile(0.95)
			s.P99Ms, _ = m.sketch.GetValueAtQuantile(0.99)
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}

// Report writes one log line per observed action.
func (r *Registry) Report() {
	for _, s := range r.Snapshot() {
		log.Info("action latency",
			"action", s.Action,
			"count", s.Count,
			"errors", s.Errors,
			"avg_ms", s.AvgMs,
			"p50_ms", s.P50Ms,
			"p95_ms", s.P95Ms,
			"p99_ms", s.P99Ms,
		)
	}
}

// ReportLoop reports at the given interval until stop is closed, then
// writes a final report. A non-positive interval skips the periodic
// reports but still writes the final one.
func (r *Registry) ReportLoop(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		<-stop
		r.Report()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Report()
		case <-stop:
			r.Report()
			return
		}
	}
}
