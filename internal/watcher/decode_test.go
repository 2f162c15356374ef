package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]any
		want      string
		malformed bool
	}{
		{name: "drive letter", payload: disk("E:"), want: "E:"},
		{name: "extra fields ignored", payload: map[string]any{
			"TargetInstance": map[string]any{"Name": "F:", "DriveType": 2},
			"TIME_CREATED":   uint64(133000000000000000),
		}, want: "F:"},
		{name: "null name", payload: disk(nil), want: ""},
		{name: "null instance", payload: map[string]any{"TargetInstance": nil}, want: ""},
		{name: "missing instance", payload: map[string]any{}, malformed: true},
		{name: "missing name", payload: map[string]any{"TargetInstance": map[string]any{}}, malformed: true},
		{name: "name wrong type", payload: disk(42), malformed: true},
		{name: "instance wrong type", payload: map[string]any{"TargetInstance": "E:"}, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEvent(tt.payload)
			if tt.malformed {
				assert.ErrorIs(t, err, errMalformedPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// nextEvent 从 COM 属性组装的事件形状必须能被 decodeEvent 解开
func TestDecodeEvent_EnvelopeShape(t *testing.T) {
	assert.Equal(t, map[string]any{"TargetInstance": map[string]any{"Name": "E:"}}, newEnvelope(diskInstance("E:")))

	got, err := decodeEvent(newEnvelope(diskInstance("E:")))
	require.NoError(t, err)
	assert.Equal(t, "E:", got)

	// TargetInstance 不是对象时 VARIANT.Value() 可能是 nil 或标量
	got, err = decodeEvent(newEnvelope(nil))
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = decodeEvent(newEnvelope(int32(7)))
	assert.ErrorIs(t, err, errMalformedPayload)
}
