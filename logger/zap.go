package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger zap 日志实现.
type zapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	file   *os.File
}

// newZapLogger 创建 zap logger.
func newZapLogger(config *Config) (Logger, error) {
	level := parseLevel(config.Level)
	encoder := buildEncoder(config)

	var (
		cores []zapcore.Core
		file  *os.File
	)

	if config.needsFileOutput() {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, &ConfigError{Field: "file_path", Message: "failed to create log directory: " + err.Error()}
		}
		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &ConfigError{Field: "file_path", Message: "failed to open log file: " + err.Error()}
		}
		file = f
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	if config.needsConsoleOutput() {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	var options []zap.Option
	if config.EnableCaller {
		// 跳过 zapLogger 自身的包装层
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	core := zapcore.NewTee(cores...)
	if config.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(core, config.Sampling.Tick, config.Sampling.Initial, config.Sampling.Thereafter)
	}

	base := config.baseFields()
	baseFields := make([]zap.Field, len(base))
	for i, f := range base {
		baseFields[i] = toZapField(f)
	}
	zapLog := zap.New(core, options...).With(baseFields...)

	return &zapLogger{
		logger: zapLog,
		sugar:  zapLog.Sugar(),
		file:   file,
	}, nil
}

// buildEncoder 根据格式构建编码器.
func buildEncoder(config *Config) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(config.TimeLayout)
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	if strings.EqualFold(config.Format, FormatConsole) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.ConsoleSeparator = "\t"
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// parseLevel 解析日志级别.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn, "warning":
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debug(args ...any)                 { z.sugar.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(args ...any)                  { z.sugar.Info(args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(args ...any)                  { z.sugar.Warn(args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(args ...any)                 { z.sugar.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }

// With 返回带有附加字段的 logger.
func (z *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return z
	}
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = toZapField(f)
	}

	child := z.logger.With(zapFields...)
	return &zapLogger{
		logger: child,
		sugar:  child.Sugar(),
		file:   z.file,
	}
}

// WithContext 返回带有 context 中 trace 信息的 logger.
//
// context 中没有 trace 信息时返回当前 logger.
func (z *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}
	return z.With(FieldsFromContext(ctx)...)
}

// Sync 同步日志缓冲区.
func (z *zapLogger) Sync() error {
	return z.logger.Sync()
}

// Close 同步缓冲区并关闭日志文件.
func (z *zapLogger) Close() error {
	// stdout 的 sync 错误可以忽略: https://github.com/uber-go/zap/issues/328
	_ = z.logger.Sync()
	if z.file != nil {
		return z.file.Close()
	}
	return nil
}

// toZapField 将 Field 转换为 zap.Field.
func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int32:
		return zap.Int32(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Reflect(f.Key, v)
	}
}

// String 创建字符串字段.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int 创建整数字段.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int32 创建 int32 字段.
func Int32(key string, value int32) Field {
	return Field{Key: key, Value: value}
}

// Int64 创建 int64 字段.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool 创建布尔字段.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration 创建持续时间字段.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err 创建错误字段.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any 创建任意类型字段.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
