package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	transitions  map[string]int64
	commands     map[string]int64
	sweeps       map[string]*SweepStats
}

// SweepStats accumulates reconciliation results for one loop.
type SweepStats struct {
	Sweeps       int64         `json:"sweeps"`
	FailedSweeps int64         `json:"failed_sweeps"`
	Checked      int64         `json:"checked"`
	Closed       int64         `json:"closed"`
	TicketErrors int64         `json:"ticket_errors"`
	LastSweepAt  time.Time     `json:"last_sweep_at"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests    map[string]int64      `json:"requests"`
	Errors      map[string]int64      `json:"errors"`
	Transitions map[string]int64      `json:"transitions"`
	Commands    map[string]int64      `json:"commands"`
	Sweeps      map[string]SweepStats `json:"sweeps"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		transitions:  make(map[string]int64),
		commands:     make(map[string]int64),
		sweeps:       make(map[string]*SweepStats),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts a persisted lifecycle event by source.
func (m *Metrics) RecordTransition(eventType, source string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[eventType+"|"+source]++
}

// RecordCommand counts a command outcome.
func (m *Metrics) RecordCommand(name, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[name+"|"+outcome]++
}

// RecordSweep accumulates one reconciliation pass. failed marks a sweep that
// could not list tickets at all.
func (m *Metrics) RecordSweep(loop string, checked, closed, ticketErrors int, failed bool, at time.Time, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.sweeps[loop]
	if !ok {
		stats = &SweepStats{}
		m.sweeps[loop] = stats
	}
	stats.Sweeps++
	if failed {
		stats.FailedSweeps++
	}
	stats.Checked += int64(checked)
	stats.Closed += int64(closed)
	stats.TicketErrors += int64(ticketErrors)
	stats.LastSweepAt = at
	stats.LastDuration = duration
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Requests:    map[string]int64{},
		Errors:      map[string]int64{},
		Transitions: map[string]int64{},
		Commands:    map[string]int64{},
		Sweeps:      map[string]SweepStats{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.transitions {
		snap.Transitions[k] = v
	}
	for k, v := range m.commands {
		snap.Commands[k] = v
	}
	for k, v := range m.sweeps {
		snap.Sweeps[k] = *v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
