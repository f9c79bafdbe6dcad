package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	logrus "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Options configures the rotating log file and the logrus formatter.
type Options struct {
	File       string `yaml:"file" validate:"required"`
	Level      string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	Stdout     bool   `yaml:"stdout"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gt=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

func DefaultOptions() Options {
	return Options{
		File:       "./logs/app.log",
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  10, // megabytes
		MaxBackups: 7,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// Setup points logrus at a rotating file (and stdout when asked) and returns
// the writer so the request logger can share it.
func Setup(opts Options) (io.Writer, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	var out io.Writer = rotator
	if opts.Stdout {
		out = io.MultiWriter(rotator, os.Stdout)
	}

	logrus.SetOutput(out)
	if opts.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	logrus.SetLevel(level)
	return out, nil
}

// GormLogger routes GORM's SQL and slow query logging through logrus.
func GormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// RequestLogger writes one zerolog line per request to w, skipping the
// given paths such as /health.
func RequestLogger(w io.Writer, skip ...string) gin.HandlerFunc {
	return ginlog.SetLogger(
		ginlog.WithWriter(w),
		ginlog.WithUTC(true),
		ginlog.WithSkipPath(skip),
		ginlog.WithLogger(func(_ *gin.Context, l zerolog.Logger) zerolog.Logger {
			return l.With().Str("component", "http").Logger()
		}),
	)
}
