package base

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Matatika/tap-shopify/pkg/errors"
)

// ErrorHandler classifies errors for retry decisions and keeps counts by
// category for the end-of-sync summary.
type ErrorHandler struct {
	logger        *zap.Logger
	errorCounts   map[string]int64
	errorMutex    sync.RWMutex
	totalErrors   int64
	retriedErrors int64
	fatalErrors   int64
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:      logger,
		errorCounts: make(map[string]int64),
	}
}

// ShouldRetry determines if an error should be retried
func (eh *ErrorHandler) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var e *errors.Error
	if errors.As(err, &e) {
		return errors.IsRetryable(err)
	}

	errStr := strings.ToLower(err.Error())

	nonRetryable := []string{
		"invalid credentials",
		"unauthorized",
		"forbidden",
		"not found",
		"bad request",
	}
	for _, pattern := range nonRetryable {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	retryable := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"eof",
	}
	for _, pattern := range retryable {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// Retryable wraps ShouldRetry and counts the outcome, for use as the
// condition of RetryPolicy.ExecuteWithCondition.
func (eh *ErrorHandler) Retryable(err error) bool {
	atomic.AddInt64(&eh.totalErrors, 1)
	eh.incrementErrorCount(eh.categorizeError(err))

	if eh.ShouldRetry(err) {
		atomic.AddInt64(&eh.retriedErrors, 1)
		return true
	}
	atomic.AddInt64(&eh.fatalErrors, 1)
	return false
}

// RecordError records an error that did not stop the sync
func (eh *ErrorHandler) RecordError(err error, fields ...zap.Field) {
	errorType := eh.categorizeError(err)
	atomic.AddInt64(&eh.totalErrors, 1)
	eh.incrementErrorCount(errorType)

	eh.logger.Warn("error recorded",
		append(fields, zap.Error(err), zap.String("error_type", errorType))...)
}

// GetErrorStats returns error statistics
func (eh *ErrorHandler) GetErrorStats() map[string]interface{} {
	eh.errorMutex.RLock()
	defer eh.errorMutex.RUnlock()

	errorCounts := make(map[string]int64, len(eh.errorCounts))
	for k, v := range eh.errorCounts {
		errorCounts[k] = v
	}

	return map[string]interface{}{
		"total_errors":   atomic.LoadInt64(&eh.totalErrors),
		"retried_errors": atomic.LoadInt64(&eh.retriedErrors),
		"fatal_errors":   atomic.LoadInt64(&eh.fatalErrors),
		"errors_by_type": errorCounts,
	}
}

// categorizeError determines the error category
func (eh *ErrorHandler) categorizeError(err error) string {
	if err == nil {
		return "none"
	}

	var e *errors.Error
	if errors.As(err, &e) {
		return string(e.Type)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection"):
		return "connection"
	case strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal"):
		return "parsing"
	default:
		return "unknown"
	}
}

// incrementErrorCount increments the count for a specific error type
func (eh *ErrorHandler) incrementErrorCount(errorType string) {
	eh.errorMutex.Lock()
	defer eh.errorMutex.Unlock()
	eh.errorCounts[errorType]++
}
