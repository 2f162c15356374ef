//go:build windows

package watcher

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

const (
	wmiNamespace = `root\cimv2`

	sFalse          = 0x00000001 // CoInitializeEx: 本线程已初始化
	wbemErrTimedOut = 0x80043001 // NextEvent 超时
)

var errSourceClosed = errors.New("WMI event source closed")

type pollRequest struct {
	timeout time.Duration
	reply   chan pollResult
}

type pollResult struct {
	payload map[string]any
	err     error
}

// wmiSource 所有 COM 调用都在 loop 所在的线程上执行
type wmiSource struct {
	requests  chan pollRequest
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newSource(interval time.Duration) (source, error) {
	s := &wmiSource{
		requests: make(chan pollRequest),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	ready := make(chan error, 1)
	go s.loop(interval, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s, nil
}

func (s *wmiSource) loop(interval time.Duration, ready chan<- error) {
	defer close(s.stopped)

	// COM 对象只能在初始化它的 OS 线程上使用
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || (oleErr.Code() != ole.S_OK && oleErr.Code() != sFalse) {
			ready <- fmt.Errorf("CoInitializeEx: %w", err)
			return
		}
	}
	defer ole.CoUninitialize()

	events, release, err := subscribe(interval)
	if err != nil {
		ready <- err
		return
	}
	defer release()
	ready <- nil

	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			payload, err := nextEvent(events, req.timeout)
			req.reply <- pollResult{payload: payload, err: err}
		}
	}
}

// subscribe 连接 root\cimv2 并注册 __InstanceCreationEvent 过滤 (只要逻辑磁盘)
func subscribe(interval time.Duration) (*ole.IDispatch, func(), error) {
	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, nil, fmt.Errorf("create SWbemLocator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, nil, fmt.Errorf("query SWbemLocator: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", nil, wmiNamespace)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", wmiNamespace, err)
	}
	service := serviceRaw.ToIDispatch()

	query := fmt.Sprintf(
		"SELECT * FROM __InstanceCreationEvent WITHIN %g WHERE TargetInstance ISA 'Win32_LogicalDisk'",
		interval.Seconds(),
	)
	sourceRaw, err := oleutil.CallMethod(service, "ExecNotificationQuery", query)
	if err != nil {
		_ = serviceRaw.Clear()
		return nil, nil, fmt.Errorf("ExecNotificationQuery: %w", err)
	}

	release := func() {
		_ = sourceRaw.Clear()
		_ = serviceRaw.Clear()
	}
	return sourceRaw.ToIDispatch(), release, nil
}

// nextEvent 读取一个事件并转换成 {"TargetInstance": {"Name": ...}}
func nextEvent(events *ole.IDispatch, timeout time.Duration) (map[string]any, error) {
	eventRaw, err := oleutil.CallMethod(events, "NextEvent", int32(timeout.Milliseconds()))
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("NextEvent: %w", err)
	}
	defer eventRaw.Clear()

	event := eventRaw.ToIDispatch()
	if event == nil {
		return nil, fmt.Errorf("%w: event is not an object", errMalformedPayload)
	}
	instRaw, err := oleutil.GetProperty(event, "TargetInstance")
	if err != nil {
		return nil, fmt.Errorf("%w: TargetInstance: %w", errMalformedPayload, err)
	}
	defer instRaw.Clear()

	inst := instRaw.ToIDispatch()
	if inst == nil {
		// 交给 decodeEvent 判断
		return newEnvelope(instRaw.Value()), nil
	}
	nameRaw, err := oleutil.GetProperty(inst, "Name")
	if err != nil {
		return nil, fmt.Errorf("%w: TargetInstance.Name: %w", errMalformedPayload, err)
	}
	defer nameRaw.Clear()

	return newEnvelope(diskInstance(nameRaw.Value())), nil
}

func isTimeout(err error) bool {
	var oleErr *ole.OleError
	if !errors.As(err, &oleErr) {
		return false
	}
	if oleErr.Code() == wbemErrTimedOut {
		return true
	}
	// IDispatch::Invoke 返回 DISP_E_EXCEPTION, 真正的错误码在 EXCEPINFO 里
	if info, ok := oleErr.SubError().(ole.EXCEPINFO); ok {
		return info.SCODE() == wbemErrTimedOut
	}
	return false
}

func (s *wmiSource) poll(timeout time.Duration) (map[string]any, error) {
	reply := make(chan pollResult, 1)
	select {
	case s.requests <- pollRequest{timeout: timeout, reply: reply}:
	case <-s.stopped:
		return nil, errSourceClosed
	}
	res := <-reply
	return res.payload, res.err
}

func (s *wmiSource) close() error {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
	return nil
}
