//go:build windows

package sysutil

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// HideWindow 子进程不弹出控制台窗口
func HideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}
