package telemetry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/crew/config"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_runs_total",
		Help: "Total orchestration runs by terminal status.",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crew_run_duration_seconds",
		Help:    "End-to-end run duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	dispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_dispatches_total",
		Help: "Worker dispatches by agent and outcome.",
	}, []string{"agent", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crew_dispatch_duration_seconds",
		Help:    "Per-dispatch round trip duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"agent"})

	plannerTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_planner_tokens_total",
		Help: "LLM tokens consumed by the planner, by model and direction.",
	}, []string{"model", "direction"})
)

// Telemetry provides monitoring and cost tracking for orchestration runs.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	metrics     *Metrics
	costTracker *CostTracker
	mu          sync.RWMutex
}

// Metrics holds various performance metrics
type Metrics struct {
	// Run metrics
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	// Per-agent dispatch metrics
	AgentDispatches   map[string]int64
	AgentSuccessRates map[string]float64
	AgentAverageTimes map[string]time.Duration

	// LLM metrics
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
}

// CostTracker tracks costs across different LLM models and operations
type CostTracker struct {
	OperationCosts map[string]float64 // operation -> cost
	ModelCosts     map[string]float64 // model -> cost

	TotalCost   float64
	TotalTokens int64
}

// RunEvent represents one complete orchestration run
type RunEvent struct {
	ID         string
	Request    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Success    bool
	Error      string
	Cost       float64
	TokensUsed int64
	AgentsUsed []string
	ModelsUsed []string
}

// DispatchEvent represents one worker dispatch
type DispatchEvent struct {
	RunID      string
	Agent      string
	Capability string
	Duration   time.Duration
	Success    bool
	Error      string
}

// PlannerEvent represents one planner LLM call
type PlannerEvent struct {
	RunID        string
	Model        string
	Operation    string // plan, direct_answer
	Duration     time.Duration
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Success      bool
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			AgentDispatches:   make(map[string]int64),
			AgentSuccessRates: make(map[string]float64),
			AgentAverageTimes: make(map[string]time.Duration),
			LLMRequests:       make(map[string]int64),
			LLMTokensUsed:     make(map[string]int64),
		},
		costTracker: &CostTracker{
			OperationCosts: make(map[string]float64),
			ModelCosts:     make(map[string]float64),
		},
	}

	// Periodic logs can be disabled via config
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
		go t.startCostReporting()
	}

	return t
}

// RecordRunEvent records a complete orchestration run
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if !t.config.Enabled {
		return
	}

	status := "success"
	if !event.Success {
		status = "failure"
	}
	runsTotal.WithLabelValues(status).Inc()
	runDuration.Observe(event.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}

	// Update average run time
	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = event.Duration
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + event.Duration) / time.Duration(t.metrics.TotalRuns)
	}

	for _, model := range event.ModelsUsed {
		t.metrics.LLMRequests[model]++
		t.metrics.LLMTokensUsed[model] += event.TokensUsed
	}

	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed

	t.logger.Printf("Run Event: ID=%s, Success=%t, Duration=%v, Cost=$%.4f, Tokens=%d",
		event.ID, event.Success, event.Duration, event.Cost, event.TokensUsed)
}

// RecordDispatchEvent records one worker dispatch
func (t *Telemetry) RecordDispatchEvent(event DispatchEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	dispatchesTotal.WithLabelValues(event.Agent, outcome).Inc()
	dispatchDuration.WithLabelValues(event.Agent).Observe(event.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.AgentDispatches[event.Agent]++

	currentSuccess := t.metrics.AgentSuccessRates[event.Agent] * float64(t.metrics.AgentDispatches[event.Agent]-1)
	if event.Success {
		currentSuccess += 1.0
	}
	t.metrics.AgentSuccessRates[event.Agent] = currentSuccess / float64(t.metrics.AgentDispatches[event.Agent])

	currentAvg := t.metrics.AgentAverageTimes[event.Agent]
	dispatches := t.metrics.AgentDispatches[event.Agent]
	if dispatches == 1 {
		t.metrics.AgentAverageTimes[event.Agent] = event.Duration
	} else {
		total := currentAvg * time.Duration(dispatches-1)
		t.metrics.AgentAverageTimes[event.Agent] = (total + event.Duration) / time.Duration(dispatches)
	}

	t.logger.Printf("Dispatch Event: Agent=%s, Capability=%s, Success=%t, Duration=%v",
		event.Agent, event.Capability, event.Success, event.Duration)
}

// RecordPlannerEvent records one planner LLM call
func (t *Telemetry) RecordPlannerEvent(event PlannerEvent) {
	if !t.config.Enabled {
		return
	}

	plannerTokens.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
	plannerTokens.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))

	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[event.Model]++
	t.metrics.LLMTokensUsed[event.Model] += event.InputTokens + event.OutputTokens

	if t.config.CostTracking {
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.InputTokens + event.OutputTokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.OperationCosts[event.Operation] += event.Cost
	}

	t.logger.Printf("Planner Event: Model=%s, Operation=%s, Success=%t, Duration=%v, Cost=$%.4f",
		event.Model, event.Operation, event.Success, event.Duration, event.Cost)
}

// GetMetrics returns current metrics snapshot
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Deep copy to avoid races on the maps
	metrics := *t.metrics
	metrics.AgentDispatches = make(map[string]int64)
	metrics.AgentSuccessRates = make(map[string]float64)
	metrics.AgentAverageTimes = make(map[string]time.Duration)
	metrics.LLMRequests = make(map[string]int64)
	metrics.LLMTokensUsed = make(map[string]int64)

	for k, v := range t.metrics.AgentDispatches {
		metrics.AgentDispatches[k] = v
	}
	for k, v := range t.metrics.AgentSuccessRates {
		metrics.AgentSuccessRates[k] = v
	}
	for k, v := range t.metrics.AgentAverageTimes {
		metrics.AgentAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		metrics.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		metrics.LLMTokensUsed[k] = v
	}

	return metrics
}

// GetCostSummary returns current cost summary
func (t *Telemetry) GetCostSummary() CostSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		ModelCosts:     make(map[string]float64),
		OperationCosts: make(map[string]float64),
	}

	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		summary.OperationCosts[k] = v
	}

	return summary
}

// CostSummary provides a summary of costs
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

// startMetricsCollection starts periodic metrics collection
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		costs := t.GetCostSummary()

		t.logger.Printf("Metrics Snapshot: Runs=%d/%d, AvgTime=%v, TotalCost=$%.4f, TotalTokens=%d",
			metrics.SuccessfulRuns, metrics.TotalRuns,
			metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)
	}
}

// startCostReporting starts periodic cost reporting
func (t *Telemetry) startCostReporting() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		costs := t.GetCostSummary()

		t.logger.Printf("Cost Report: Total=$%.4f, Tokens=%d", costs.TotalCost, costs.TotalTokens)

		for model, cost := range costs.ModelCosts {
			t.logger.Printf("  Model %s: $%.4f", model, cost)
		}
		for op, cost := range costs.OperationCosts {
			t.logger.Printf("  Operation %s: $%.4f", op, cost)
		}
	}
}

// Shutdown logs a final report
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	if metrics.TotalRuns == 0 {
		t.logger.Println("Shutting down, no runs recorded")
		return
	}

	t.logger.Printf("Final Report:")
	t.logger.Printf("  Total Runs: %d", metrics.TotalRuns)
	t.logger.Printf("  Success Rate: %.2f%%", float64(metrics.SuccessfulRuns)/float64(metrics.TotalRuns)*100)
	t.logger.Printf("  Average Run Time: %v", metrics.AverageRunTime)
	t.logger.Printf("  Total Cost: $%.4f", costs.TotalCost)
	t.logger.Printf("  Total Tokens: %d", costs.TotalTokens)
}

// GetPerformanceReport returns a detailed performance report
func (t *Telemetry) GetPerformanceReport() string {
	metrics := t.GetMetrics()
	costs := t.GetCostSummary()

	if metrics.TotalRuns == 0 {
		return "no runs recorded"
	}

	report := fmt.Sprintf(`
=== PERFORMANCE REPORT ===
Overall Metrics:
  Total Runs: %d
  Successful: %d (%.2f%%)
  Failed: %d (%.2f%%)
  Average Run Time: %v
  Total Cost: $%.4f
  Total Tokens: %d

Agent Performance:
`, metrics.TotalRuns, metrics.SuccessfulRuns,
		float64(metrics.SuccessfulRuns)/float64(metrics.TotalRuns)*100,
		metrics.FailedRuns, float64(metrics.FailedRuns)/float64(metrics.TotalRuns)*100,
		metrics.AverageRunTime, costs.TotalCost, costs.TotalTokens)

	for agent, dispatches := range metrics.AgentDispatches {
		successRate := metrics.AgentSuccessRates[agent]
		avgTime := metrics.AgentAverageTimes[agent]
		report += fmt.Sprintf("  %s: %d dispatches, %.2f%% success, %v avg time\n",
			agent, dispatches, successRate*100, avgTime)
	}

	report += "\nLLM Usage:\n"
	for model, requests := range metrics.LLMRequests {
		tokens := metrics.LLMTokensUsed[model]
		cost := costs.ModelCosts[model]
		report += fmt.Sprintf("  %s: %d requests, %d tokens, $%.4f\n",
			model, requests, tokens, cost)
	}

	return report
}
