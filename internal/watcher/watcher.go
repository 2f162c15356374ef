package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/wslAutomount/internal/model"
	"go.uber.org/zap"
)

var (
	ErrConnectionFailed    = errors.New("failed to connect to WMI")
	ErrStreamCorrupted     = errors.New("WMI event stream corrupted")
	ErrUnsupportedPlatform = errors.New("volume notifications are only available on Windows")

	errMalformedPayload = errors.New("malformed event payload")
)

const DefaultPollInterval = time.Second

// CorruptPolicy 遇到无法解析的事件时的处理方式
type CorruptPolicy string

const (
	CorruptFatal CorruptPolicy = "fatal" // 结束监听 (默认)
	CorruptSkip  CorruptPolicy = "skip"  // 记录告警后继续
)

func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch p := CorruptPolicy(s); p {
	case CorruptFatal, CorruptSkip:
		return p, nil
	case "":
		return CorruptFatal, nil
	}
	return "", fmt.Errorf("unknown corrupt payload policy %q (want fatal or skip)", s)
}

// VolumeWatcher 定义接口
type VolumeWatcher interface {
	// Next 阻塞直到出现新卷; 空轮询不会返回
	Next(ctx context.Context) (model.VolumeCreatedEvent, error)
	Close() error
}

type Options struct {
	PollInterval time.Duration
	OnCorrupt    CorruptPolicy
}

// source 平台相关的通知来源, 所有调用来自同一个 goroutine
type source interface {
	// poll 最多等待 timeout; 超时无事件时返回 nil, nil
	poll(timeout time.Duration) (map[string]any, error)
	close() error
}

// New 建立 WMI 连接并注册 Win32_LogicalDisk 创建事件过滤
func New(opts Options, log *zap.Logger) (VolumeWatcher, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.OnCorrupt == "" {
		opts.OnCorrupt = CorruptFatal
	}
	src, err := newSource(opts.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	log.Info("🔌 Subscribed to logical disk creation events", zap.Duration("poll", opts.PollInterval))
	return newPollWatcher(src, opts, log), nil
}

type pollWatcher struct {
	src       source
	interval  time.Duration
	onCorrupt CorruptPolicy
	log       *zap.Logger
	now       func() time.Time
}

func newPollWatcher(src source, opts Options, log *zap.Logger) *pollWatcher {
	return &pollWatcher{
		src:       src,
		interval:  opts.PollInterval,
		onCorrupt: opts.OnCorrupt,
		log:       log,
		now:       time.Now,
	}
}

func (w *pollWatcher) Next(ctx context.Context) (model.VolumeCreatedEvent, error) {
	for {
		// 只在两次轮询之间检查退出信号
		if err := ctx.Err(); err != nil {
			return model.VolumeCreatedEvent{}, err
		}

		payload, err := w.src.poll(w.interval)
		if err != nil && !errors.Is(err, errMalformedPayload) {
			return model.VolumeCreatedEvent{}, fmt.Errorf("%w: %w", ErrStreamCorrupted, err)
		}
		if err == nil && payload == nil {
			continue
		}

		var name string
		if err == nil {
			name, err = decodeEvent(payload)
		}
		if err != nil {
			if w.onCorrupt == CorruptSkip {
				w.log.Warn("⚠️ Skipping malformed WMI event", zap.Error(err))
				continue
			}
			return model.VolumeCreatedEvent{}, fmt.Errorf("%w: %w", ErrStreamCorrupted, err)
		}

		w.log.Debug("💾 Volume created", zap.String("name", name))
		return model.VolumeCreatedEvent{Name: name, TimeStamp: w.now()}, nil
	}
}

func (w *pollWatcher) Close() error {
	return w.src.close()
}
