package log

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger(t *testing.T) {
	logger := NewZapLogger(InfoLevel)

	if logger == nil {
		t.Fatal("logger should not be nil")
	}

	if !logger.IsLevelEnabled(InfoLevel) {
		t.Error("logger should be enabled for InfoLevel")
	}

	if logger.IsLevelEnabled(DebugLevel) {
		t.Error("logger should not be enabled for DebugLevel when level is InfoLevel")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLoggerWithWriter(InfoLevel, &buf)

	logger.Debug("hidden")
	logger.Infof("server started, listening on %s", "[::]:50051")
	logger.WithField("service", "Greeter").Warn("slow call")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry should be filtered, got %q", out)
	}
	if !strings.Contains(out, "server started, listening on [::]:50051") {
		t.Errorf("missing info entry in %q", out)
	}
	if !strings.Contains(out, "slow call") || !strings.Contains(out, "Greeter") {
		t.Errorf("missing warn entry with field in %q", out)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLoggerWithWriter(DebugLevel, &buf)

	logger.WithFields(Fields{
		"service": "Greeter",
		"method":  "SayHello",
	}).Info("call")

	out := buf.String()
	for _, want := range []string{"Greeter", "SayHello", "call"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLoggerWithWriter(InfoLevel, &buf)

	logger.WithError(errors.New("connection reset")).Error("read request")

	if !strings.Contains(buf.String(), "connection reset") {
		t.Errorf("expected error text in %q", buf.String())
	}

	if logger.WithError(nil) == nil {
		t.Error("WithError(nil) should return logger")
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLoggerWithWriter(InfoLevel, &buf)

	// 空上下文
	if logger.WithContext(context.TODO()) == nil {
		t.Fatal("logger with empty context should not be nil")
	}

	ctx := NewContext(context.Background(), Fields{"remote": "127.0.0.1:4000"})
	ctx = NewContext(ctx, Fields{"seq": 7})
	logger.WithContext(ctx).Info("request")

	out := buf.String()
	if !strings.Contains(out, "127.0.0.1:4000") || !strings.Contains(out, "7") {
		t.Errorf("expected context fields in %q", out)
	}
}

func TestLoggerLevelControl(t *testing.T) {
	logger := NewZapLogger(DebugLevel)

	logger.SetLevel(InfoLevel)
	if logger.IsLevelEnabled(DebugLevel) {
		t.Error("logger should not be enabled for DebugLevel after setting level to InfoLevel")
	}

	if !logger.IsLevelEnabled(InfoLevel) {
		t.Error("logger should be enabled for InfoLevel")
	}

	if !logger.IsLevelEnabled(ErrorLevel) {
		t.Error("logger should be enabled for ErrorLevel")
	}
}

func TestDummyLogger(t *testing.T) {
	dummy := &dummyLogger{}

	dummy.Debug("test")
	dummy.Debugf("test %s", "message")
	dummy.Info("test")
	dummy.Infof("test %s", "message")
	dummy.Warn("test")
	dummy.Warnf("test %s", "message")
	dummy.Error("test")
	dummy.Errorf("test %s", "message")
	dummy.Fatal("test")
	dummy.Fatalf("test %s", "message")
	dummy.Panic("test")
	dummy.Panicf("test %s", "message")

	if dummy.WithField("key", "value") == nil {
		t.Error("WithField should return logger")
	}
	if dummy.WithFields(Fields{"key": "value"}) == nil {
		t.Error("WithFields should return logger")
	}
	if dummy.WithError(nil) == nil {
		t.Error("WithError should return logger")
	}
	if dummy.WithContext(context.TODO()) == nil {
		t.Error("WithContext should return logger")
	}

	dummy.SetLevel(InfoLevel)
	if dummy.IsLevelEnabled(InfoLevel) {
		t.Error("dummy logger should never be enabled")
	}
}

func TestGlobalFunctions(t *testing.T) {
	old := l
	defer SetLogger(old)

	var buf bytes.Buffer
	SetLogger(NewZapLoggerWithWriter(DebugLevel, &buf))

	Debug("test debug")
	Infof("test info %s", "message")
	Warn("test warn")
	Errorf("test error %s", "message")

	out := buf.String()
	for _, want := range []string{"test debug", "test info message", "test warn", "test error message"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	SetDummyLogger()
	buf.Reset()
	Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("dummy logger should drop entries, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"fatal", FatalLevel},
		{"panic", PanicLevel},
		{" info ", InfoLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{FatalLevel, "FATAL"},
		{PanicLevel, "PANIC"},
		{100, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestColorLevelEncoder(t *testing.T) {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:    "level",
		TimeKey:     "time",
		MessageKey:  "message",
		EncodeLevel: colorLevelEncoder,
	})

	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Message: "hello",
	}

	buf, err := encoder.EncodeEntry(entry, nil)
	if err != nil {
		t.Fatalf("encode entry: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "INFO") || !strings.Contains(output, "hello") {
		t.Errorf("unexpected encoder output %q", output)
	}
}
