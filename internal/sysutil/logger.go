package sysutil

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Log *zap.Logger
var LogSugar *zap.SugaredLogger

// LogOptions 日志配置
type LogOptions struct {
	Level string // debug, info, warn, error
	File  string // 为空时输出到控制台
}

// InitLogger 初始化全局日志
func InitLogger(opts LogOptions) error {
	logger, err := NewLogger(opts, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	Log = logger
	LogSugar = Log.Sugar()
	return nil
}

// NewLogger 构建日志: Error 以下写 stdout, Error 及以上写 stderr
// 指定日志文件时全部写入文件 (windowsgui 构建下没有控制台)
func NewLogger(opts LogOptions, stdout, stderr io.Writer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder // 格式化时间输出

	if opts.File != "" {
		// 文件不需要颜色
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(config.EncoderConfig),
			zapcore.AddSync(rotator),
			level,
		)
		return zap.New(core, zap.AddCaller()), nil
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别
	encoder := zapcore.NewConsoleEncoder(config.EncoderConfig)
	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.ErrorLevel
	})
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(stdout), low),
		zapcore.NewCore(encoder, zapcore.AddSync(stderr), high),
	)
	return zap.New(core, zap.AddCaller()), nil
}
