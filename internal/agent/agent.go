package agent

import (
	"context"
	"errors"

	"github.com/Hara602/wslAutomount/internal/model"
	"go.uber.org/zap"
)

// EventSource 新卷事件来源 (watcher.VolumeWatcher)
type EventSource interface {
	Next(ctx context.Context) (model.VolumeCreatedEvent, error)
}

// Mounter 对单个卷做一次挂载尝试 (mounter.WSLMounter)
type Mounter interface {
	Mount(ctx context.Context, volume string) error
}

// Run 逐个消费事件, 单个事件的挂载失败只记日志不退出
// 只有事件源出错才会返回; ctx 取消视为正常退出
func Run(ctx context.Context, src EventSource, m Mounter, log *zap.Logger) error {
	sugar := log.Sugar()
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		log.Debug("💾 New volume",
			zap.String("drive", ev.Name),
			zap.Time("createdAt", ev.TimeStamp),
		)
		if err := m.Mount(ctx, ev.Name); err != nil {
			sugar.Errorf("Failed to mount drive %s: %v", ev.Name, err)
			continue
		}
		sugar.Infof("Drive %s mounted", ev.Name)
	}
}
