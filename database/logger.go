package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tsukikage7/inventory-service/logger"
)

// gormLoggerAdapter 将 GORM 日志输出到 logger.Logger.
type gormLoggerAdapter struct {
	logger        logger.Logger
	slowThreshold time.Duration
	logLevel      gormlogger.LogLevel
}

func newGORMLoggerAdapter(log logger.Logger, slowThreshold time.Duration, level string) gormlogger.Interface {
	return &gormLoggerAdapter{
		logger:        log,
		slowThreshold: slowThreshold,
		logLevel:      parseLogLevel(level),
	}
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode 设置日志模式.
func (l *gormLoggerAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLoggerAdapter) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logger.WithContext(ctx).Infof(msg, data...)
	}
}

func (l *gormLoggerAdapter) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warnf(msg, data...)
	}
}

func (l *gormLoggerAdapter) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logger.WithContext(ctx).Errorf(msg, data...)
	}
}

// Trace SQL 跟踪日志：失败记 Error，慢查询记 Warn，其余仅在 info 级别记 Debug.
func (l *gormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)

	switch {
	case failed && l.logLevel >= gormlogger.Error:
	case slow && l.logLevel >= gormlogger.Warn:
	case l.logLevel >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	log := l.logger.WithContext(ctx).With(
		logger.Duration("elapsed", elapsed),
		logger.Int64("rows", rows),
		logger.String("sql", sql),
	)

	switch {
	case failed:
		log.With(logger.Err(err)).Error("[Database] SQL执行失败")
	case slow:
		log.With(logger.Duration("threshold", l.slowThreshold)).Warn("[Database] 慢查询")
	default:
		log.Debug("[Database] SQL执行成功")
	}
}
