package model

import "time"

// VolumeCreatedEvent 新卷挂载事件 (由 WMI __InstanceCreationEvent 转换而来)
// 每个事件只被消费一次；重复的卷名各自独立处理
type VolumeCreatedEvent struct {
	Name      string // 卷标识, e.g. "E:"
	TimeStamp time.Time
}
