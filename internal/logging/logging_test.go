package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{
			name:     "debug level",
			input:    "debug",
			expected: LogLevelDebug,
			wantErr:  false,
		},
		{
			name:     "info level",
			input:    "info",
			expected: LogLevelInfo,
			wantErr:  false,
		},
		{
			name:     "warning level",
			input:    "warning",
			expected: LogLevelWarning,
			wantErr:  false,
		},
		{
			name:     "error level",
			input:    "error",
			expected: LogLevelError,
			wantErr:  false,
		},
		{
			name:     "invalid level",
			input:    "invalid",
			expected: LogLevelError,
			wantErr:  true,
		},
		{
			name:     "uppercase not supported",
			input:    "DEBUG",
			expected: LogLevelError,
			wantErr:  true,
		},
		{
			name:     "empty string",
			input:    "",
			expected: LogLevelError,
			wantErr:  true,
		},
		{
			name:     "mixed case not supported",
			input:    "Debug",
			expected: LogLevelError,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseLogLevel_ErrorMessage(t *testing.T) {
	_, err := ParseLogLevel("invalid")
	if err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}

	expectedMsg := "invalid log level: invalid (must be debug, info, warning, or error)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestLogLevelConstants(t *testing.T) {
	// Verify that log levels are ordered correctly (lower value = more verbose)
	if LogLevelDebug >= LogLevelInfo {
		t.Error("LogLevelDebug should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelWarning {
		t.Error("LogLevelInfo should be less than LogLevelWarning")
	}
	if LogLevelWarning >= LogLevelError {
		t.Error("LogLevelWarning should be less than LogLevelError")
	}
}

func TestLogLevelComparison(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		compare  LogLevel
		expected bool
	}{
		{
			name:     "debug <= debug is true",
			level:    LogLevelDebug,
			compare:  LogLevelDebug,
			expected: true,
		},
		{
			name:     "debug <= info is true",
			level:    LogLevelDebug,
			compare:  LogLevelInfo,
			expected: true,
		},
		{
			name:     "info <= debug is false",
			level:    LogLevelInfo,
			compare:  LogLevelDebug,
			expected: false,
		},
		{
			name:     "error <= warning is false",
			level:    LogLevelError,
			compare:  LogLevelWarning,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.level <= tt.compare
			if got != tt.expected {
				t.Errorf("%v <= %v = %v, want %v", tt.level, tt.compare, got, tt.expected)
			}
		})
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogLevelDebug, "debug"},
		{LogLevelInfo, "info"},
		{LogLevelWarning, "warning"},
		{LogLevelError, "error"},
		{LogLevel(42), "LogLevel(42)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", int(tt.level), got, tt.want)
		}
	}
}

func TestLogLevelZerolog(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  zerolog.Level
	}{
		{LogLevelDebug, zerolog.DebugLevel},
		{LogLevelInfo, zerolog.InfoLevel},
		{LogLevelWarning, zerolog.WarnLevel},
		{LogLevelError, zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		if got := tt.level.Zerolog(); got != tt.want {
			t.Errorf("%v.Zerolog() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewJSON_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, LogLevelWarning)

	logger.Info().Msg("hidden")
	logger.Warn().Str("key", "cache").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warning level, got: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("expected warning message in output, got: %s", out)
	}
	if !strings.Contains(out, `"key":"cache"`) {
		t.Errorf("expected structured field in output, got: %s", out)
	}
}

func TestNew_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LogLevelDebug)

	logger.Debug().Msg("fetching vehicles")

	if !strings.Contains(buf.String(), "fetching vehicles") {
		t.Errorf("expected console output to contain message, got: %s", buf.String())
	}
}
