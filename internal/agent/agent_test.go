package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Hara602/wslAutomount/internal/model"
	"github.com/Hara602/wslAutomount/internal/mounter"
	"github.com/Hara602/wslAutomount/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// scriptedSource 依次返回事件, 最后返回 end
type scriptedSource struct {
	names []string
	at    time.Time
	end   error
}

func (s *scriptedSource) Next(ctx context.Context) (model.VolumeCreatedEvent, error) {
	if len(s.names) == 0 {
		return model.VolumeCreatedEvent{}, s.end
	}
	name := s.names[0]
	s.names = s.names[1:]
	return model.VolumeCreatedEvent{Name: name, TimeStamp: s.at}, nil
}

type recordingMounter struct {
	results []error
	calls   []string
}

func (m *recordingMounter) Mount(ctx context.Context, volume string) error {
	m.calls = append(m.calls, volume)
	if len(m.results) == 0 {
		return nil
	}
	err := m.results[0]
	m.results = m.results[1:]
	return err
}

// newObservedLogger 只记录 Info 及以上, 即用户可见的结果行
func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func TestRun_LogsPerEventResult(t *testing.T) {
	log, logs := newObservedLogger()
	src := &scriptedSource{names: []string{"E:", "E:", "G:"}, end: context.Canceled}
	m := &recordingMounter{results: []error{
		fmt.Errorf("%w: exit status 32", mounter.ErrMountCommandFailed),
		nil,
		mounter.ErrSubsystemNotRunning,
	}}

	err := Run(context.Background(), src, m, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"E:", "E:", "G:"}, m.calls)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "Failed to mount drive E:: mount command failed: exit status 32", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "Drive E: mounted", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "Failed to mount drive G:: WSL is not running", entries[2].Message)
}

func TestRun_MalformedIdentifierDoesNotStopLoop(t *testing.T) {
	log, logs := newObservedLogger()
	src := &scriptedSource{names: []string{"", "F:"}, end: context.Canceled}
	m := &recordingMounter{results: []error{mounter.ErrMalformedVolumeIdentifier, nil}}

	require.NoError(t, Run(context.Background(), src, m, log))
	assert.Len(t, m.calls, 2)
	assert.Equal(t, 1, logs.FilterMessage("Drive F: mounted").Len())
}

func TestRun_StreamErrorTerminates(t *testing.T) {
	log, _ := newObservedLogger()
	corrupt := fmt.Errorf("%w: bad payload", watcher.ErrStreamCorrupted)
	src := &scriptedSource{names: []string{"E:"}, end: corrupt}
	m := &recordingMounter{}

	err := Run(context.Background(), src, m, log)
	assert.ErrorIs(t, err, watcher.ErrStreamCorrupted)
	assert.Equal(t, []string{"E:"}, m.calls)
}

func TestRun_DeadlineIsNotCleanShutdown(t *testing.T) {
	log, _ := newObservedLogger()
	src := &scriptedSource{end: context.DeadlineExceeded}

	err := Run(context.Background(), src, &recordingMounter{}, log)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_DebugLogsCreationTime(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	src := &scriptedSource{names: []string{"E:"}, at: at, end: context.Canceled}

	require.NoError(t, Run(context.Background(), src, &recordingMounter{}, zap.New(core)))

	debug := logs.FilterMessage("💾 New volume").AllUntimed()
	require.Len(t, debug, 1)
	fields := debug[0].ContextMap()
	assert.Equal(t, "E:", fields["drive"])
	createdAt, ok := fields["createdAt"].(time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(createdAt))
}
