package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects and manages engine execution metrics
type MetricsCollector struct {
	tasksExecuted     int64
	tasksYielded      int64
	tasksAborted      int64
	recordsScanned    int64
	recordsEmitted    int64
	exchangeRecords   int64
	evaluatorErrors   int64
	totalTaskTime     int64
	activeWorkers     int64
	errorCount        map[string]int64
	errorCountMutex   sync.RWMutex
	statementsStarted int64
	statementsDone    int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		errorCount: make(map[string]int64),
	}
}

// IncrementTasksExecuted counts one finished task slice
func (m *MetricsCollector) IncrementTasksExecuted() {
	atomic.AddInt64(&m.tasksExecuted, 1)
}

// IncrementTasksYielded counts one cooperative yield
func (m *MetricsCollector) IncrementTasksYielded() {
	atomic.AddInt64(&m.tasksYielded, 1)
}

// IncrementTasksAborted counts one aborted task
func (m *MetricsCollector) IncrementTasksAborted() {
	atomic.AddInt64(&m.tasksAborted, 1)
}

// AddRecordsScanned counts records read by scan operators
func (m *MetricsCollector) AddRecordsScanned(n int64) {
	atomic.AddInt64(&m.recordsScanned, n)
}

// AddRecordsEmitted counts records written to result writers
func (m *MetricsCollector) AddRecordsEmitted(n int64) {
	atomic.AddInt64(&m.recordsEmitted, n)
}

// AddExchangeRecords counts records passing through exchanges
func (m *MetricsCollector) AddExchangeRecords(n int64) {
	atomic.AddInt64(&m.exchangeRecords, n)
}

// IncrementEvaluatorErrors counts expression evaluation failures
func (m *MetricsCollector) IncrementEvaluatorErrors() {
	atomic.AddInt64(&m.evaluatorErrors, 1)
}

// RecordTaskTime adds one task slice duration to the total
func (m *MetricsCollector) RecordTaskTime(duration time.Duration) {
	atomic.AddInt64(&m.totalTaskTime, int64(duration))
}

// SetActiveWorkers sets the currently busy worker count
func (m *MetricsCollector) SetActiveWorkers(count int64) {
	atomic.StoreInt64(&m.activeWorkers, count)
}

// IncrementErrorCount increments the error count for a specific error type
func (m *MetricsCollector) IncrementErrorCount(errorType string) {
	m.errorCountMutex.Lock()
	m.errorCount[errorType]++
	m.errorCountMutex.Unlock()
}

// IncrementStatementsStarted counts one accepted statement
func (m *MetricsCollector) IncrementStatementsStarted() {
	atomic.AddInt64(&m.statementsStarted, 1)
}

// IncrementStatementsDone counts one finished statement
func (m *MetricsCollector) IncrementStatementsDone() {
	atomic.AddInt64(&m.statementsDone, 1)
}

// Snapshot is a point-in-time copy of every counter
type Snapshot struct {
	TasksExecuted     int64
	TasksYielded      int64
	TasksAborted      int64
	RecordsScanned    int64
	RecordsEmitted    int64
	ExchangeRecords   int64
	EvaluatorErrors   int64
	TotalTaskTime     time.Duration
	ActiveWorkers     int64
	StatementsStarted int64
	StatementsDone    int64
	ErrorCounts       map[string]int64
}

// GetSnapshot returns a consistent copy of the metrics
func (m *MetricsCollector) GetSnapshot() Snapshot {
	m.errorCountMutex.RLock()
	counts := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		counts[k] = v
	}
	m.errorCountMutex.RUnlock()
	return Snapshot{
		TasksExecuted:     atomic.LoadInt64(&m.tasksExecuted),
		TasksYielded:      atomic.LoadInt64(&m.tasksYielded),
		TasksAborted:      atomic.LoadInt64(&m.tasksAborted),
		RecordsScanned:    atomic.LoadInt64(&m.recordsScanned),
		RecordsEmitted:    atomic.LoadInt64(&m.recordsEmitted),
		ExchangeRecords:   atomic.LoadInt64(&m.exchangeRecords),
		EvaluatorErrors:   atomic.LoadInt64(&m.evaluatorErrors),
		TotalTaskTime:     time.Duration(atomic.LoadInt64(&m.totalTaskTime)),
		ActiveWorkers:     atomic.LoadInt64(&m.activeWorkers),
		StatementsStarted: atomic.LoadInt64(&m.statementsStarted),
		StatementsDone:    atomic.LoadInt64(&m.statementsDone),
		ErrorCounts:       counts,
	}
}
