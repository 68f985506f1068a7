package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks ledger activity driven by the authentication workflow
type MetricsCollector struct {
	mu sync.RWMutex

	appendStartTime time.Time
	appendEndTime   time.Time
	appendCount     int
	appendTotalTime time.Duration

	validationStartTime time.Time
	validationEndTime   time.Time
	validationCount     int
	validationFailures  int
	validationTotalTime time.Duration
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// MetricsResponse provides the metrics for all operations
type MetricsResponse struct {
	Appends            OperationMetrics `json:"appends"`
	Validations        OperationMetrics `json:"validations"`
	ValidationFailures int              `json:"validation_failures"`
	ChainLength        int              `json:"chain_length"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordAppend records one committed block.
func (mc *MetricsCollector) RecordAppend(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.appendCount == 0 {
		mc.appendStartTime = now
	}
	mc.appendCount++
	mc.appendEndTime = now
	mc.appendTotalTime += duration
}

// RecordValidation records one full-chain validation and its verdict.
func (mc *MetricsCollector) RecordValidation(duration time.Duration, valid bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if mc.validationCount == 0 {
		mc.validationStartTime = now
	}
	mc.validationCount++
	mc.validationEndTime = now
	mc.validationTotalTime += duration
	if !valid {
		mc.validationFailures++
	}
}

// GetMetrics returns current metrics. ChainLength is filled in by the caller
// that owns the ledger.
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		Appends: OperationMetrics{
			StartTime:      mc.appendStartTime,
			EndTime:        mc.appendEndTime,
			Count:          mc.appendCount,
			ProcessingTime: mc.appendTotalTime.Milliseconds(),
		},
		Validations: OperationMetrics{
			StartTime:      mc.validationStartTime,
			EndTime:        mc.validationEndTime,
			Count:          mc.validationCount,
			ProcessingTime: mc.validationTotalTime.Milliseconds(),
		},
		ValidationFailures: mc.validationFailures,
	}
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.appendStartTime = time.Time{}
	mc.appendEndTime = time.Time{}
	mc.appendCount = 0
	mc.appendTotalTime = 0

	mc.validationStartTime = time.Time{}
	mc.validationEndTime = time.Time{}
	mc.validationCount = 0
	mc.validationFailures = 0
	mc.validationTotalTime = 0
}
