package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type executionKey struct {
	strategy string
	outcome  string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu             sync.Mutex
	cycles         uint64
	executions     map[executionKey]uint64
	faults         map[string]uint64
	emergencyStops uint64
	cycleLatency   *histogram
}

var engineCollector = &collector{
	executions:   make(map[executionKey]uint64),
	faults:       make(map[string]uint64),
	cycleLatency: newHistogram(),
}

// ObserveCycle records the completion of one scheduler cycle.
func ObserveCycle(duration time.Duration) {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.cycles++
	engineCollector.cycleLatency.observe(duration.Seconds())
}

// ObserveExecution records a single agent execution outcome.
// Outcome is one of executed, skipped, fault.
func ObserveExecution(strategy, outcome string) {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.executions[executionKey{strategy: strategy, outcome: outcome}]++
	if outcome == "fault" {
		engineCollector.faults[strategy]++
	}
}

// ObserveEmergencyStop records a circuit-breaker escalation.
func ObserveEmergencyStop() {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.emergencyStops++
}

func newHistogram() *histogram {
	buckets := []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
	// Values above the last bucket only appear in the +Inf bucket via h.count.
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, engineCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	b.WriteString("# HELP aegis_engine_cycles_total Completed scheduler cycles.\n")
	b.WriteString("# TYPE aegis_engine_cycles_total counter\n")
	fmt.Fprintf(&b, "aegis_engine_cycles_total %d\n", c.cycles)

	b.WriteString("# HELP aegis_engine_executions_total Agent execution outcomes by strategy.\n")
	b.WriteString("# TYPE aegis_engine_executions_total counter\n")
	execKeys := make([]executionKey, 0, len(c.executions))
	for key := range c.executions {
		execKeys = append(execKeys, key)
	}
	sort.Slice(execKeys, func(i, j int) bool {
		if execKeys[i].strategy != execKeys[j].strategy {
			return execKeys[i].strategy < execKeys[j].strategy
		}
		return execKeys[i].outcome < execKeys[j].outcome
	})
	for _, key := range execKeys {
		fmt.Fprintf(&b, "aegis_engine_executions_total{strategy=%q,outcome=%q} %d\n",
			key.strategy, key.outcome, c.executions[key])
	}

	b.WriteString("# HELP aegis_engine_faults_total Thrown strategy faults by strategy.\n")
	b.WriteString("# TYPE aegis_engine_faults_total counter\n")
	faultKeys := make([]string, 0, len(c.faults))
	for key := range c.faults {
		faultKeys = append(faultKeys, key)
	}
	sort.Strings(faultKeys)
	for _, key := range faultKeys {
		fmt.Fprintf(&b, "aegis_engine_faults_total{strategy=%q} %d\n", key, c.faults[key])
	}

	b.WriteString("# HELP aegis_engine_emergency_stops_total Circuit-breaker escalations.\n")
	b.WriteString("# TYPE aegis_engine_emergency_stops_total counter\n")
	fmt.Fprintf(&b, "aegis_engine_emergency_stops_total %d\n", c.emergencyStops)

	b.WriteString("# HELP aegis_engine_cycle_duration_seconds Scheduler cycle latency.\n")
	b.WriteString("# TYPE aegis_engine_cycle_duration_seconds histogram\n")
	for i, bound := range c.cycleLatency.buckets {
		fmt.Fprintf(&b, "aegis_engine_cycle_duration_seconds_bucket{le=\"%g\"} %d\n",
			bound, c.cycleLatency.counts[i])
	}
	fmt.Fprintf(&b, "aegis_engine_cycle_duration_seconds_bucket{le=\"+Inf\"} %d\n", c.cycleLatency.count)
	fmt.Fprintf(&b, "aegis_engine_cycle_duration_seconds_sum %g\n", c.cycleLatency.sum)
	fmt.Fprintf(&b, "aegis_engine_cycle_duration_seconds_count %d\n", c.cycleLatency.count)

	return b.String()
}
