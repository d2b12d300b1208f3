package observability

import (
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// Turn stages recorded by the orchestrator.
const (
	StagePersistUser      = "persist_user"
	StageFetchContext     = "fetch_context"
	StageClassify         = "classify"
	StageGenerate         = "generate"
	StagePersistAssistant = "persist_assistant"
	StageAlertDispatch    = "alert_dispatch"
	StageTurnTotal        = "turn_total"
)

// stageBudgetsMS are p95 latency budgets. Generation dominates; classification is a substring scan.
var stageBudgetsMS = map[string]float64{
	StagePersistUser:      50,
	StagePersistAssistant: 50,
	StageFetchContext:     75,
	StageClassify:         2,
	StageGenerate:         6000,
	StageAlertDispatch:    2000,
	StageTurnTotal:        7000,
}

// StageStats summarizes the retained samples of one stage.
type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts retained samples slower than the budget.
	OverTarget int `json:"over_target,omitempty"`
}

// TurnStageSnapshot is served on /v1/perf/latency.
type TurnStageSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []StageStats   `json:"stages"`
	Indicators  map[string]int `json:"indicators,omitempty"`
}

// latencyRing keeps the last cap(samples) observations of a stage.
type latencyRing struct {
	samples []float64
	head    int
	last    float64
}

func (r *latencyRing) add(ms float64, size int) {
	r.last = ms
	if len(r.samples) < size {
		r.samples = append(r.samples, ms)
		return
	}
	r.samples[r.head] = ms
	r.head = (r.head + 1) % size
}

func (r *latencyRing) stats(stage string) StageStats {
	sorted := slices.Clone(r.samples)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	st := StageStats{
		Stage:   stage,
		Samples: len(sorted),
		LastMS:  round2(r.last),
		AvgMS:   round2(sum / float64(len(sorted))),
		P50MS:   round2(nearestRank(sorted, 0.50)),
		P95MS:   round2(nearestRank(sorted, 0.95)),
		P99MS:   round2(nearestRank(sorted, 0.99)),
		MaxMS:   round2(sorted[len(sorted)-1]),
	}
	if budget, ok := stageBudgetsMS[stage]; ok {
		st.TargetP95MS = budget
		for _, v := range sorted {
			if v > budget {
				st.OverTarget++
			}
		}
	}
	return st
}

type turnStageWindow struct {
	mu         sync.Mutex
	size       int
	stages     map[string]*latencyRing
	indicators map[string]int
}

func newTurnStageWindow(size int) *turnStageWindow {
	if size <= 0 {
		size = 256
	}
	return &turnStageWindow{
		size:       size,
		stages:     make(map[string]*latencyRing),
		indicators: make(map[string]int),
	}
}

func (w *turnStageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.stages[stage]
	if r == nil {
		r = &latencyRing{samples: make([]float64, 0, w.size)}
		w.stages[stage] = r
	}
	r.add(ms, w.size)
}

// ObserveIndicator counts a named turn outcome such as a fallback reply.
func (w *turnStageWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.indicators[name]++
	w.mu.Unlock()
}

// Snapshot returns stages sorted by name.
func (w *turnStageWindow) Snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.stages))
	for name, r := range w.stages {
		if len(r.samples) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(names)),
	}
	for _, name := range names {
		snap.Stages = append(snap.Stages, w.stages[name].stats(name))
	}
	if len(w.indicators) > 0 {
		snap.Indicators = make(map[string]int, len(w.indicators))
		for k, v := range w.indicators {
			snap.Indicators[k] = v
		}
	}
	return snap
}

// nearestRank expects sorted input with at least one element.
func nearestRank(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
