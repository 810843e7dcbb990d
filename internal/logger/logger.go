package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 项目统一日志接口，参数为 key/value 交替
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志配置
type Options struct {
	Level      string
	Writers    []string // console / file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type zeroLogger struct {
	l zerolog.Logger
}

// New 根据配置创建 zerolog 实现
func New(opts Options) Logger {
	var writers []io.Writer
	for _, w := range opts.Writers {
		switch strings.ToLower(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	return NewWithWriter(zerolog.MultiLevelWriter(writers...), opts.Level)
}

// NewWithWriter 使用指定输出创建 Logger
func NewWithWriter(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &zeroLogger{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewNop 创建丢弃所有输出的 Logger
func NewNop() Logger {
	return &zeroLogger{l: zerolog.Nop()}
}

func (z *zeroLogger) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
func (z *zeroLogger) Info(msg string, kv ...any)  { z.l.Info().Fields(kv).Msg(msg) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z *zeroLogger) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }

func (z *zeroLogger) Err(err error, msg string, kv ...any) {
	z.l.Error().Err(err).Fields(kv).Msg(msg)
}

func (z *zeroLogger) With(kv ...any) Logger {
	return &zeroLogger{l: z.l.With().Fields(kv).Logger()}
}
