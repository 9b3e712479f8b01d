// Package errors defines the error taxonomy of the tracking engine and the
// single channel every component reports through.
//
// None of these errors are fatal. The engine instruments someone else's
// page, so every public operation catches its own failures and hands them to
// a Channel instead of returning them to the host.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of a tracker error.
type ErrorType string

const (
	ErrorTypeDecode             ErrorType = "decode"
	ErrorTypeResolution         ErrorType = "resolution"
	ErrorTypeCollision          ErrorType = "collision"
	ErrorTypeRuntimeUnavailable ErrorType = "runtime_unavailable"
	ErrorTypeDelivery           ErrorType = "delivery"
	ErrorTypeInternal           ErrorType = "internal"
)

// TrackerError is a structured error type with context.
type TrackerError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Component string
	// Attribute is the tagging attribute involved, if any.
	Attribute string
	// ElementID is the per-element identifier involved, if any.
	ElementID string
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.ElementID != "" {
		parts = append(parts, "element:"+e.ElementID)
	}

	if e.Attribute != "" {
		parts = append(parts, "attribute:"+e.Attribute)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TrackerError) Is(target error) bool {
	var t *TrackerError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TrackerError) WithContext(key string, value interface{}) *TrackerError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *TrackerError) WithComponent(component string) *TrackerError {
	e.Component = component

	return e
}

// WithElement records the element identifier the error relates to.
func (e *TrackerError) WithElement(elementID string) *TrackerError {
	e.ElementID = elementID

	return e
}

// Error creation functions

// NewDecodeError creates an error for a malformed or invalid attribute payload.
func NewDecodeError(attribute, code, message string, cause error) *TrackerError {
	return &TrackerError{
		Type:      ErrorTypeDecode,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Attribute: attribute,
	}
}

// NewResolutionError creates an error for a parent override that could not
// be resolved to a tagged element.
func NewResolutionError(parentID, message string) *TrackerError {
	return (&TrackerError{
		Type:      ErrorTypeResolution,
		Code:      ErrCodeParentNotFound,
		Message:   message,
		Attribute: "parent-element-id",
	}).WithContext("parent", parentID)
}

// NewCollisionError creates an error for two live elements claiming the
// same location stack.
func NewCollisionError(elementID, existingID, stack string) *TrackerError {
	return (&TrackerError{
		Type:      ErrorTypeCollision,
		Code:      ErrCodeLocationCollision,
		Message:   "location stack is not unique: " + stack,
		ElementID: elementID,
	}).WithContext("existing", existingID)
}

// NewRuntimeUnavailableError creates an error for a missing platform primitive.
func NewRuntimeUnavailableError(primitive string) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeRuntimeUnavailable,
		Code:    ErrCodeRuntimeUnavailable,
		Message: primitive + " is not available in this environment",
	}
}

// NewDeliveryError wraps a failure reported by the delivery collaborator.
func NewDeliveryError(code, message string, cause error) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeDelivery,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TrackerError {
	return &TrackerError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsType reports whether err is a TrackerError of the given type.
func IsType(err error, typ ErrorType) bool {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Type == typ
	}

	return false
}

// AsTrackerError finds the first TrackerError in err's chain.
func AsTrackerError(err error, target **TrackerError) bool {
	return errors.As(err, target)
}

// IsDecodeError checks if an error is a decode error.
func IsDecodeError(err error) bool {
	return IsType(err, ErrorTypeDecode)
}

// IsResolutionError checks if an error is a resolution error.
func IsResolutionError(err error) bool {
	return IsType(err, ErrorTypeResolution)
}

// IsCollisionError checks if an error is a collision error.
func IsCollisionError(err error) bool {
	return IsType(err, ErrorTypeCollision)
}

// Common error codes.
const (
	ErrCodeInvalidJSON        = "ERR_INVALID_JSON"
	ErrCodeInvalidShape       = "ERR_INVALID_SHAPE"
	ErrCodeUnknownKind        = "ERR_UNKNOWN_KIND"
	ErrCodeMissingID          = "ERR_MISSING_ID"
	ErrCodeMissingAttribute   = "ERR_MISSING_ATTRIBUTE"
	ErrCodeInvalidOption      = "ERR_INVALID_OPTION"
	ErrCodeParentNotFound     = "ERR_PARENT_NOT_FOUND"
	ErrCodeParentCycle        = "ERR_PARENT_CYCLE"
	ErrCodeLocationCollision  = "ERR_LOCATION_COLLISION"
	ErrCodeRuntimeUnavailable = "ERR_RUNTIME_UNAVAILABLE"
	ErrCodeInvalidSelector    = "ERR_INVALID_SELECTOR"
	ErrCodeSharedElementID    = "ERR_SHARED_ELEMENT_ID"
	ErrCodeTrackFailed        = "ERR_TRACK_FAILED"
	ErrCodeFlushFailed        = "ERR_FLUSH_FAILED"
	ErrCodeRecoveredPanic     = "ERR_RECOVERED_PANIC"
	ErrCodeInternalError      = "ERR_INTERNAL"
)
