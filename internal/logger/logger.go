// Package logger 提供统一的结构化日志接口，底层使用 zerolog 实现。
//
// 控制台只输出 info 及以上级别避免刷屏，文件则记录所有级别，
// 并通过 lumberjack 控制文件大小。
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 日志接口，kv 为交替出现的键值对
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// Err 记录带有 error 字段的错误日志
	Err(err error, msg string, kv ...any)
}

// Options 日志初始化选项
type Options struct {
	// Level 全局最低级别：debug、info、warn、error
	Level string
	// ConsoleLevel 控制台的最低级别，避免调试日志刷屏
	ConsoleLevel string
	// Writer 输出目标，可选 console、file
	Writer []string
	// File 日志文件路径，仅在 Writer 包含 file 时使用
	File string
}

type zeroLogger struct {
	l zerolog.Logger
}

// levelWriter 为单个输出目标附加独立的最低级别
type levelWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min {
		return len(p), nil
	}
	return w.Write(p)
}

// New 创建 Logger。没有任何输出目标时日志被丢弃。
func New(opt Options) Logger {
	var writers []io.Writer
	for _, w := range opt.Writer {
		switch w {
		case "console":
			writers = append(writers, levelWriter{
				Writer: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"},
				min:    parseLevel(opt.ConsoleLevel, zerolog.InfoLevel),
			})
		case "file":
			if opt.File == "" {
				continue
			}
			writers = append(writers, levelWriter{
				Writer: &lumberjack.Logger{Filename: opt.File, MaxSize: 1, MaxBackups: 1},
				min:    zerolog.TraceLevel,
			})
		}
	}
	if len(writers) == 0 {
		return NewNop()
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(opt.Level, zerolog.DebugLevel)).
		With().Timestamp().Logger()
	return &zeroLogger{l: zl}
}

// NewNop 创建不输出任何内容的 Logger，主要用于测试
func NewNop() Logger {
	return &zeroLogger{l: zerolog.Nop()}
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}

func (z *zeroLogger) Debug(msg string, kv ...any) { z.emit(z.l.Debug(), msg, kv) }
func (z *zeroLogger) Info(msg string, kv ...any)  { z.emit(z.l.Info(), msg, kv) }
func (z *zeroLogger) Warn(msg string, kv ...any)  { z.emit(z.l.Warn(), msg, kv) }
func (z *zeroLogger) Error(msg string, kv ...any) { z.emit(z.l.Error(), msg, kv) }

func (z *zeroLogger) Err(err error, msg string, kv ...any) {
	z.emit(z.l.Error().Err(err), msg, kv)
}

func (z *zeroLogger) emit(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
