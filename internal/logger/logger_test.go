package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("batch exported")

	if !strings.Contains(buf.String(), "batch exported") {
		t.Errorf("Expected output to contain 'batch exported', got: %s", buf.String())
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{name: "default level", opts: Options{}, wantLevel: zerolog.InfoLevel},
		{name: "debug", opts: Options{Level: "debug"}, wantLevel: zerolog.DebugLevel},
		{name: "upper case warn", opts: Options{Level: " WARN "}, wantLevel: zerolog.WarnLevel},
		{name: "unknown level", opts: Options{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Writer = buf
			log, err := NewWithOptions(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown level")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("Expected level %v, got %v", tt.wantLevel, log.GetLevel())
			}
		})
	}
}

func TestNewWithOptions_FiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := NewWithOptions(Options{Level: "warn", Writer: buf})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Info message should be filtered, got: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Warn message should be written, got: %s", out)
	}
}

func TestWithContext(t *testing.T) {
	ctxWithLogger := WithContext(context.Background(), New())

	if ctxWithLogger.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"date":  "2024-03-01",
		"batch": 3,
	})
	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"date":"2024-03-01"`) {
		t.Errorf("Expected output to contain date field, got: %s", output)
	}
	if !strings.Contains(output, `"batch":3`) {
		t.Errorf("Expected output to contain batch field, got: %s", output)
	}
}
