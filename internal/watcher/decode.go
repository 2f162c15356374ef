package watcher

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// __InstanceCreationEvent 中我们只关心 TargetInstance.Name
type creationEvent struct {
	TargetInstance logicalDisk `mapstructure:"TargetInstance"`
}

// Win32_LogicalDisk
type logicalDisk struct {
	Name string `mapstructure:"Name"`
}

// newEnvelope 按 __InstanceCreationEvent 的形状组装原始事件
func newEnvelope(targetInstance any) map[string]any {
	return map[string]any{"TargetInstance": targetInstance}
}

// diskInstance Win32_LogicalDisk 只取 Name
func diskInstance(name any) map[string]any {
	return map[string]any{"Name": name}
}

// decodeEvent 缺字段或类型不符视为损坏; NULL 值解码为空字符串, 交给挂载端拒绝
func decodeEvent(payload map[string]any) (string, error) {
	var ev creationEvent
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnset: true,
		Result:     &ev,
	})
	if err != nil {
		return "", err
	}
	if err := dec.Decode(payload); err != nil {
		return "", fmt.Errorf("%w: %w", errMalformedPayload, err)
	}
	return ev.TargetInstance.Name, nil
}
