package redkv

import (
	"io"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logging surface used throughout the server.
// It is satisfied by *zapLogger in normal operation; tests can supply
// any implementation, including a no-op one.
type Logger interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
}

// LogOptions configures NewLogger.
type LogOptions struct {
	Stdout     bool
	Level      string // debug, info, warn, error
	Filename   string // empty disables file rotation
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

type zapLogger struct {
	sugared *zap.SugaredLogger
}

func (l *zapLogger) Debugf(template string, args ...any) { l.sugared.Debugf(template, args...) }
func (l *zapLogger) Infof(template string, args ...any)  { l.sugared.Infof(template, args...) }
func (l *zapLogger) Warnf(template string, args ...any)  { l.sugared.Warnf(template, args...) }
func (l *zapLogger) Errorf(template string, args ...any) { l.sugared.Errorf(template, args...) }

func toZapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a Logger writing JSON-encoded entries to stdout
// and/or a rotated file, per opt.
func NewLogger(opt LogOptions) Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	var writers []zapcore.WriteSyncer
	if opt.Stdout || opt.Filename == "" {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}
	if opt.Filename != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opt.Filename,
			MaxSize:    orDefault(opt.MaxSizeMB, 100),
			MaxAge:     orDefault(opt.MaxAgeDays, 28),
			MaxBackups: orDefault(opt.MaxBackups, 3),
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), toZapLevel(opt.Level))
	return &zapLogger{sugared: zap.New(core).Sugar()}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// stdErrorLogWriter forwards every write to a Logger at error level;
// NewStdErrorLog wraps it in a stdlib *log.Logger, for embedding into
// APIs (like net/http or net.Listener error hooks) that expect one.
type stdErrorLogWriter struct{ log Logger }

func (w stdErrorLogWriter) Write(p []byte) (int, error) {
	w.log.Errorf("%s", string(p))
	return len(p), nil
}

// NewStdErrorLog adapts a Logger to the stdlib *log.Logger shape expected
// by APIs such as http.Server.ErrorLog.
func NewStdErrorLog(l Logger) *log.Logger {
	return log.New(stdErrorLogWriter{log: l}, "", 0)
}

var _ io.Writer = stdErrorLogWriter{}
