package log

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	// base has no caller skip; sugar skips the wrapper frames.
	base  *zap.Logger
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger 创建一个输出到 stderr 的彩色控制台日志器
func NewZapLogger(lvl Level) Logger {
	return newZapLogger(lvl, nil, 1)
}

// NewZapLoggerWithWriter is NewZapLogger writing to w.
func NewZapLoggerWithWriter(lvl Level, w io.Writer) Logger {
	return newZapLogger(lvl, w, 1)
}

func newZapLogger(lvl Level, w io.Writer, skip int) *zapLogger {
	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if w != nil {
		ws = zapcore.AddSync(w)
	}

	level := zap.NewAtomicLevelAt(toZapLevel(lvl))
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    colorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})

	base := zap.New(zapcore.NewCore(encoder, ws, level), zap.AddCaller())
	return &zapLogger{
		base:  base,
		sugar: base.WithOptions(zap.AddCallerSkip(skip)).Sugar(),
		level: level,
	}
}

func toZapLevel(lvl Level) zapcore.Level {
	switch lvl {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	case PanicLevel:
		return zapcore.PanicLevel
	default:
		return zapcore.InfoLevel
	}
}

// colorLevelEncoder 为不同级别着色
func colorLevelEncoder(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch lvl {
	case zapcore.DebugLevel:
		enc.AppendString(color.CyanString("DEBUG"))
	case zapcore.InfoLevel:
		enc.AppendString(color.GreenString("INFO "))
	case zapcore.WarnLevel:
		enc.AppendString(color.YellowString("WARN "))
	case zapcore.ErrorLevel:
		enc.AppendString(color.RedString("ERROR"))
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		enc.AppendString(color.MagentaString(lvl.CapitalString()))
	default:
		enc.AppendString(lvl.CapitalString())
	}
}

func (z *zapLogger) with(args ...interface{}) Logger {
	if len(args) == 0 {
		return z
	}
	base := z.base.Sugar().With(args...).Desugar()
	return &zapLogger{
		base:  base,
		sugar: base.WithOptions(zap.AddCallerSkip(1)).Sugar(),
		level: z.level,
	}
}

func (z *zapLogger) WithField(key string, value any) Logger {
	return z.with(key, value)
}

func (z *zapLogger) WithFields(fields Fields) Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return z.with(args...)
}

func (z *zapLogger) WithError(err error) Logger {
	if err == nil {
		return z
	}
	return z.with("error", err.Error())
}

func (z *zapLogger) WithContext(ctx context.Context) Logger {
	return z.WithFields(fieldsFromContext(ctx))
}

func (z *zapLogger) SetLevel(lvl Level) {
	z.level.SetLevel(toZapLevel(lvl))
}

func (z *zapLogger) IsLevelEnabled(lvl Level) bool {
	return z.level.Enabled(toZapLevel(lvl))
}

func (z *zapLogger) Debug(v ...any)                 { z.sugar.Debug(v...) }
func (z *zapLogger) Debugf(format string, v ...any) { z.sugar.Debugf(format, v...) }
func (z *zapLogger) Info(v ...any)                  { z.sugar.Info(v...) }
func (z *zapLogger) Infof(format string, v ...any)  { z.sugar.Infof(format, v...) }
func (z *zapLogger) Warn(v ...any)                  { z.sugar.Warn(v...) }
func (z *zapLogger) Warnf(format string, v ...any)  { z.sugar.Warnf(format, v...) }
func (z *zapLogger) Error(v ...any)                 { z.sugar.Error(v...) }
func (z *zapLogger) Errorf(format string, v ...any) { z.sugar.Errorf(format, v...) }
func (z *zapLogger) Fatal(v ...any)                 { z.sugar.Fatal(v...) }
func (z *zapLogger) Fatalf(format string, v ...any) { z.sugar.Fatalf(format, v...) }
func (z *zapLogger) Panic(v ...any)                 { z.sugar.Panic(v...) }
func (z *zapLogger) Panicf(format string, v ...any) { z.sugar.Panicf(format, v...) }
