package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logger is the subset of the logging interface the channel falls back to.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// HandlerFunc receives every error reported through a Channel.
type HandlerFunc func(ctx context.Context, err error)

// Channel is the one place engine components report failures to. A
// caller-supplied handler takes precedence; otherwise errors are logged.
// Reported errors are also kept by the collector, if one is attached.
type Channel struct {
	handler   HandlerFunc
	logger    Logger
	collector *ErrorCollector
}

// NewChannel creates an error channel. Both handler and logger may be nil,
// in which case errors are only collected (or dropped).
func NewChannel(handler HandlerFunc, logger Logger) *Channel {
	return &Channel{
		handler: handler,
		logger:  logger,
	}
}

// WithCollector attaches a collector that records every reported error.
func (c *Channel) WithCollector(collector *ErrorCollector) *Channel {
	c.collector = collector

	return c
}

// Report routes err to the handler or the logging fallback. It never panics,
// including when the handler itself panics.
func (c *Channel) Report(ctx context.Context, err error) {
	if c == nil || err == nil {
		return
	}

	if c.collector != nil {
		c.collector.AddError(err)
	}

	if c.handler != nil {
		defer func() {
			if r := recover(); r != nil && c.logger != nil {
				c.logger.Error(ctx, err, "error handler panicked", "panic", r)
			}
		}()
		c.handler(ctx, err)

		return
	}

	if c.logger == nil {
		return
	}

	var te *TrackerError
	if errors.As(err, &te) {
		switch te.Type {
		case ErrorTypeCollision, ErrorTypeDecode:
			c.logger.Warn(ctx, err, "tracking degraded",
				"type", te.Type,
				"code", te.Code,
				"component", te.Component)
		default:
			c.logger.Error(ctx, err, "tracking error",
				"type", te.Type,
				"code", te.Code,
				"component", te.Component)
		}

		return
	}

	c.logger.Error(ctx, err, "unclassified tracking error")
}

// Recover converts a panic into a reported internal error. Use it deferred at
// public boundaries:
//
//	defer errs.Recover(ctx, "autotrack")
func (c *Channel) Recover(ctx context.Context, component string) {
	if r := recover(); r != nil {
		c.Report(ctx, NewInternalError(ErrCodeRecoveredPanic, "recovered panic", nil).
			WithComponent(component).
			WithContext("panic", r))
	}
}

// Entry is one collected error.
type Entry struct {
	Err       error
	Timestamp time.Time
}

// ErrorCollector collects reported errors for later inspection.
type ErrorCollector struct {
	entries []Entry
	mutex   sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		entries: make([]Entry, 0),
	}
}

// AddError adds an error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.entries = append(ec.entries, Entry{Err: err, Timestamp: time.Now()})
}

// GetAllErrors returns all collected errors in report order.
func (ec *ErrorCollector) GetAllErrors() []error {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]error, 0, len(ec.entries))
	for _, e := range ec.entries {
		result = append(result, e.Err)
	}

	return result
}

// GetErrorsByType returns collected tracker errors of the given type.
func (ec *ErrorCollector) GetErrorsByType(typ ErrorType) []*TrackerError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	var result []*TrackerError
	for _, e := range ec.entries {
		var te *TrackerError
		if errors.As(e.Err, &te) && te.Type == typ {
			result = append(result, te)
		}
	}

	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.entries) > 0
}

// Count returns the number of collected errors.
func (ec *ErrorCollector) Count() int {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.entries)
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.entries = ec.entries[:0]
}
