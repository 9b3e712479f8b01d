package config

import (
	"fmt"
	"strings"

	"github.com/conneroisu/autotrack/internal/codec"
	"github.com/conneroisu/autotrack/internal/location"
	"github.com/conneroisu/autotrack/internal/logging"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateTrackerConfig(&config.Tracker, result)
	validateLogConfig(&config.Log, result)
	validateOutputConfig(&config.Output, result)
	validateStreamConfig(&config.Stream, result)
	validateWatchConfig(&config.Watch, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateTrackerConfig(config *TrackerConfig, result *ValidationResult) {
	for _, raw := range config.Prefix {
		if _, err := ParseContext(raw); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "tracker.prefix",
				Value:       raw,
				Message:     err.Error(),
				Suggestions: []string{"Write prefix contexts as Kind:id, e.g. RootLocationContext:home"},
			})
		}
	}

	if config.WaitIntervalMs < 0 || config.WaitTimeoutMs < 0 || config.DrainIntervalMs < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "tracker",
			Message: "durations must not be negative",
		})
	}
	if config.WaitTimeoutMs > 0 && config.WaitIntervalMs > config.WaitTimeoutMs {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "tracker.wait_interval_ms",
			Value:       config.WaitIntervalMs,
			Message:     "poll interval is longer than the wait timeout",
			Suggestions: []string{"Blocking presses poll at most once before timing out"},
		})
	}

	switch codec.FlushPolicy(config.FlushPolicy) {
	case codec.FlushAlways, codec.FlushNever, codec.FlushOnTimeout:
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:       "tracker.flush_policy",
			Value:       config.FlushPolicy,
			Message:     fmt.Sprintf("unknown flush policy %q", config.FlushPolicy),
			Suggestions: []string{"Use always, never or onTimeout"},
		})
	}
}

func validateLogConfig(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use debug, info, warn or error"},
		})
	}
	switch normalize(config.Format) {
	case "text", "json":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Value:   config.Format,
			Message: fmt.Sprintf("unknown log format %q", config.Format),
		})
	}
}

func validateOutputConfig(config *OutputConfig, result *ValidationResult) {
	switch normalize(config.Format) {
	case "json", "yaml", "table":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:       "output.format",
			Value:       config.Format,
			Message:     fmt.Sprintf("unknown output format %q", config.Format),
			Suggestions: []string{"Use table, json or yaml"},
		})
	}
}

func validateStreamConfig(config *StreamConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "stream.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
		})
	}
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "stream.host",
				Value:   config.Host,
				Message: fmt.Sprintf("host contains dangerous character: %s", char),
			})
			break
		}
	}
	if config.Enabled && config.Host == "0.0.0.0" && len(config.AllowedOrigins) == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "stream.allowed_origins",
			Message:     "stream listens on every interface without an origin allow list",
			Suggestions: []string{"Set stream.allowed_origins or bind to localhost"},
		})
	}
}

func validateWatchConfig(config *WatchConfig, result *ValidationResult) {
	if config.DebounceMs < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   config.DebounceMs,
			Message: "debounce must not be negative",
		})
	}
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "watch.extensions",
				Value:       ext,
				Message:     fmt.Sprintf("extension %q does not start with a dot", ext),
				Suggestions: []string{fmt.Sprintf("Use .%s", ext)},
			})
		}
	}
}

// ParseContext parses a "Kind:id" prefix entry. Link contexts carry their
// href after an @, as in "LinkContext:docs@/docs".
func ParseContext(raw string) (location.Context, error) {
	kindName, rest, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || rest == "" {
		return location.Context{}, fmt.Errorf("context %q is not Kind:id", raw)
	}
	kind, ok := location.ParseKind(kindName)
	if !ok {
		return location.Context{}, fmt.Errorf("unknown context kind %q", kindName)
	}

	ctx := location.NewContext(kind, rest)
	if kind == location.KindLink {
		id, href, _ := strings.Cut(rest, "@")
		ctx = location.NewLink(id, href)
	}
	if err := ctx.Validate(); err != nil {
		return location.Context{}, err
	}
	return ctx, nil
}

// PrefixStack parses every prefix entry into a location stack.
func (c TrackerConfig) PrefixStack() (location.Stack, error) {
	var stack location.Stack
	for _, raw := range c.Prefix {
		ctx, err := ParseContext(raw)
		if err != nil {
			return nil, err
		}
		stack = stack.Append(ctx)
	}
	return stack, nil
}
