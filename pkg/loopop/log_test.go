package loopop_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/loopop/pkg/loopop"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := loopop.NewLogger(&buf, zerolog.InfoLevel)

	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected log output to contain 'test message', got: %s", output)
	}
	if !strings.HasSuffix(strings.TrimSpace(output), "lib=loopop") {
		t.Errorf("Expected log output to end with 'lib=loopop', got: %s", output)
	}
}

func TestLogLevelFromString(t *testing.T) {
	testCases := []struct {
		levelStr string
		expected zerolog.Level
		wantErr  bool
	}{
		{"trace", zerolog.TraceLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{" Info ", zerolog.InfoLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tc := range testCases {
		t.Run(tc.levelStr, func(t *testing.T) {
			level, err := loopop.LogLevelFromString(tc.levelStr)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Expected error for invalid level %q", tc.levelStr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if level != tc.expected {
				t.Errorf("Expected level %v, got %v", tc.expected, level)
			}
		})
	}
}

func TestNewLogger_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := loopop.NewLogger(&buf, zerolog.InfoLevel)

	logger.Warn().Str("host", "example.com").Msg("host unreachable")

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("Expected no colour codes in buffered output, got: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "host=example.com") {
		t.Errorf("Expected plain key=value fields, got: %s", buf.String())
	}
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	zl := loopop.NewLogger(&buf, zerolog.DebugLevel)
	logger := loopop.NewLoggerAdapter(&zl)

	logger.Debug().
		Str("op_id", "reachability-1").
		Int("probes", 3).
		Bool("cancelled", false).
		Dur("duration", 1500*time.Millisecond).
		Strs("modes", []string{"default", "tracking"}).
		Err(errors.New("host unreachable")).
		Msg("operation finished")

	output := buf.String()
	for _, want := range []string{
		"operation finished",
		"op_id=reachability-1",
		"probes=3",
		"cancelled=false",
		"duration=1500",
		"host unreachable",
		"tracking",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected log output to contain %q, got: %s", want, output)
		}
	}

	// disabled levels must not panic or write
	buf.Reset()
	logger.Trace().Str("k", "v").Dur("d", time.Second).Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected trace to be filtered, got: %s", buf.String())
	}
}
