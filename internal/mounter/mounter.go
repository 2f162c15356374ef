package mounter

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Hara602/wslAutomount/internal/sysutil"
)

var (
	ErrMalformedVolumeIdentifier = errors.New("malformed volume identifier")
	ErrSubsystemQueryFailed      = errors.New("failed to query WSL state")
	ErrSubsystemNotRunning       = errors.New("WSL is not running")
	ErrMountCommandFailed        = errors.New("mount command failed")
	ErrProcessLaunchFailed       = errors.New("failed to launch mount command")
)

const (
	DefaultWSLPath   = "wsl"
	DefaultMountRoot = "/mnt"
	FSType           = "drvfs"
	privilegedUser   = "root"
)

// Options 挂载参数
type Options struct {
	WSLPath   string // wsl.exe 路径
	MountRoot string // WSL 内的挂载根目录
}

// WSLMounter 把宿主机新卷通过 drvfs 挂进 WSL
// 无状态：每次 Mount 都重新检查 WSL 是否在运行
type WSLMounter struct {
	opts        Options
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(opts Options) *WSLMounter {
	if opts.WSLPath == "" {
		opts.WSLPath = DefaultWSLPath
	}
	if opts.MountRoot == "" {
		opts.MountRoot = DefaultMountRoot
	}
	return &WSLMounter{
		opts:        opts,
		execCommand: exec.CommandContext,
	}
}

// TargetName 取卷标识首字符并转小写, "E:" -> "e"
func TargetName(volume string) (string, error) {
	r, size := utf8.DecodeRuneInString(volume)
	if size == 0 || r == utf8.RuneError {
		return "", fmt.Errorf("%w: %q", ErrMalformedVolumeIdentifier, volume)
	}
	return string(unicode.ToLower(r)), nil
}

// MountPoint 返回 WSL 内的挂载点, e.g. /mnt/e
func (m *WSLMounter) MountPoint(volume string) (string, error) {
	name, err := TargetName(volume)
	if err != nil {
		return "", err
	}
	// WSL 内是 POSIX 路径, 不能用 filepath
	return path.Join(m.opts.MountRoot, name), nil
}

// Mount 对一个卷做一次挂载尝试, 不重试
func (m *WSLMounter) Mount(ctx context.Context, volume string) error {
	target, err := m.MountPoint(volume)
	if err != nil {
		return err
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}
	if !running {
		return ErrSubsystemNotRunning
	}

	code, out, err := m.run(ctx, "-u", privilegedUser, "-e", "mount", "-t", FSType, volume, target)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessLaunchFailed, err)
	}
	if code != 0 {
		return fmt.Errorf("%w: exit status %d, output: %s", ErrMountCommandFailed, code, cleanOutput(out))
	}
	return nil
}

// IsRunning `wsl --list --running` 退出码为 0 表示至少有一个发行版在运行
func (m *WSLMounter) IsRunning(ctx context.Context) (bool, error) {
	code, _, err := m.run(ctx, "--list", "--running")
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSubsystemQueryFailed, err)
	}
	return code == 0, nil
}

// run 同步执行 wsl 子命令; 非零退出码不算错误, 只有无法启动才返回 err
func (m *WSLMounter) run(ctx context.Context, args ...string) (int, []byte, error) {
	cmd := m.execCommand(ctx, m.opts.WSLPath, args...)
	sysutil.HideWindow(cmd)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), out, nil
		}
		return -1, out, err
	}
	return 0, out, nil
}

// cleanOutput wsl.exe 自身的输出是 UTF-16LE, 去掉 NUL 便于写日志
func cleanOutput(out []byte) string {
	return strings.TrimSpace(strings.ReplaceAll(string(out), "\x00", ""))
}
