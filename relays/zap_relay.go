package relays

import (
	"fmt"
	"os"
	"strings"

	relayDTO "github.com/joy-dx/relay/dto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapRelay renders relay events through a zap logger.
type ZapRelay struct {
	logger *zap.Logger
}

// NewZapRelay wraps logger; nil discards everything.
func NewZapRelay(logger *zap.Logger) *ZapRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRelay{logger: logger}
}

func (r *ZapRelay) Logger() *zap.Logger { return r.logger }

func (r *ZapRelay) Debug(data relayDTO.RelayEventInterface) {
	r.write(zapcore.DebugLevel, data)
}
func (r *ZapRelay) Info(data relayDTO.RelayEventInterface) {
	r.write(zapcore.InfoLevel, data)
}
func (r *ZapRelay) Warn(data relayDTO.RelayEventInterface) {
	r.write(zapcore.WarnLevel, data)
}
func (r *ZapRelay) Error(data relayDTO.RelayEventInterface) {
	r.write(zapcore.ErrorLevel, data)
}

// Fatal logs at error level; a library never exits the process.
func (r *ZapRelay) Fatal(data relayDTO.RelayEventInterface) {
	r.write(zapcore.ErrorLevel, data, zap.Bool("fatal", true))
}
func (r *ZapRelay) Meta(data relayDTO.RelayEventInterface) {
	r.write(zapcore.DebugLevel, data, zap.Bool("meta", true))
}

func (r *ZapRelay) write(level zapcore.Level, data relayDTO.RelayEventInterface, extra ...zap.Field) {
	if data == nil {
		return
	}
	ce := r.logger.Check(level, data.Message())
	if ce == nil {
		return
	}
	attrs := data.ToSlog()
	fields := make([]zap.Field, 0, len(attrs)+2+len(extra))
	fields = append(fields,
		zap.String("channel", string(data.RelayChannel())),
		zap.String("type", string(data.RelayType())),
	)
	for _, a := range attrs {
		fields = append(fields, zap.Any(a.Key, a.Value.Resolve().Any()))
	}
	fields = append(fields, extra...)
	ce.Write(fields...)
}

// NewConsoleLogger builds a human readable zap logger on stdout.
func NewConsoleLogger(level string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		lvl,
	)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)), nil
}

func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}
