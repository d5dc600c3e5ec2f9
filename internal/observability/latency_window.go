package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Latency stages tracked for /v1/perf/latency.
const (
	StageResponder = "speech_to_reply"
	StageTurnTotal = "turn_total"
)

// Rough p95 budgets for a phone turn; Twilio waits about 15s on a webhook.
var stageBudgetsMS = map[string]float64{
	StageResponder: 2500,
	StageTurnTotal: 3000,
}

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget,omitempty"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

// TurnStageSnapshot is a point-in-time view of the rolling latency window.
type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Outcomes    []OutcomeCount   `json:"outcomes,omitempty"`
}

// sampleRing keeps the most recent samples of one stage.
type sampleRing struct {
	buf   []float64
	pos   int
	count int
}

func (r *sampleRing) add(v float64) {
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *sampleRing) last() float64 {
	return r.buf[(r.pos-1+len(r.buf))%len(r.buf)]
}

func (r *sampleRing) sorted() []float64 {
	out := slices.Clone(r.buf[:r.count])
	slices.Sort(out)
	return out
}

type latencyWindow struct {
	mu       sync.Mutex
	size     int
	stages   map[string]*sampleRing
	outcomes map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:     size,
		stages:   make(map[string]*sampleRing),
		outcomes: make(map[string]int),
	}
}

func (w *latencyWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &sampleRing{buf: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.add(ms)
}

func (w *latencyWindow) countOutcome(outcome string) {
	if outcome == "" {
		return
	}
	w.mu.Lock()
	w.outcomes[outcome]++
	w.mu.Unlock()
}

func (w *latencyWindow) snapshot(now time.Time) TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := TurnStageSnapshot{
		GeneratedAt: now,
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.stages)),
	}
	for _, stage := range sortedKeys(w.stages) {
		r := w.stages[stage]
		if r.count == 0 {
			continue
		}
		samples := r.sorted()
		var sum float64
		for _, v := range samples {
			sum += v
		}
		st := TurnStageStats{
			Stage:       stage,
			Samples:     len(samples),
			LastMS:      roundMS(r.last()),
			AvgMS:       roundMS(sum / float64(len(samples))),
			P50MS:       roundMS(percentile(samples, 0.50)),
			P95MS:       roundMS(percentile(samples, 0.95)),
			P99MS:       roundMS(percentile(samples, 0.99)),
			BudgetP95MS: stageBudgetsMS[stage],
		}
		st.OverBudget = st.BudgetP95MS > 0 && st.P95MS > st.BudgetP95MS
		snap.Stages = append(snap.Stages, st)
	}
	for _, outcome := range sortedKeys(w.outcomes) {
		snap.Outcomes = append(snap.Outcomes, OutcomeCount{Outcome: outcome, Count: w.outcomes[outcome]})
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// percentile interpolates linearly between the two closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 1:
		return sorted[n-1]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

func roundMS(v float64) float64 {
	return math.Round(v*100) / 100
}
