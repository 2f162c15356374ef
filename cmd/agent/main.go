// Command agent 监听 Windows 新卷并自动挂载到 WSL 的 /mnt/<盘符>
//
// 无控制台窗口版本: go build -ldflags "-H=windowsgui" ./cmd/agent
// (此时没有 stdout, 请配合 --log-file 使用)
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/wslAutomount/internal/agent"
	"github.com/Hara602/wslAutomount/internal/config"
	"github.com/Hara602/wslAutomount/internal/mounter"
	"github.com/Hara602/wslAutomount/internal/sysutil"
	"github.com/Hara602/wslAutomount/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

var flags struct {
	configPath string
	cfg        config.Config
}

func main() {
	os.Exit(execute(os.Stderr))
}

// execute 返回进程退出码; 只有 WMI 不可用或事件流损坏时非零
func execute(stderr io.Writer) int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	// 日志初始化之后的错误已经由 run 记录过
	if sysutil.Log == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "wsl-automount",
	Short: "Automatically mount newly attached Windows drives inside WSL",
	Long: `wsl-automount watches WMI for new logical disks (USB sticks, mapped
network drives, new partitions) and mounts each one inside the running WSL
distribution with "mount -t drvfs <X:> /mnt/<x>".

Existing drives are not scanned, removed drives are not unmounted, and a
failed mount is not retried.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	def := config.Default()
	f := rootCmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file")
	f.StringVar(&flags.cfg.WSLPath, "wsl", def.WSLPath, "wsl executable")
	f.StringVar(&flags.cfg.MountRoot, "mount-root", def.MountRoot, "mount root inside WSL")
	f.DurationVar(&flags.cfg.PollInterval, "poll-interval", def.PollInterval, "WMI event poll interval")
	f.StringVar(&flags.cfg.OnCorrupt, "on-corrupt", def.OnCorrupt, "what to do with an undecodable WMI event (fatal|skip)")
	f.StringVar(&flags.cfg.LogLevel, "log-level", def.LogLevel, "log level (debug|info|warn|error)")
	f.StringVar(&flags.cfg.LogFile, "log-file", "", "write logs to a rotated file instead of the console")
}

// loadConfig 优先级: 显式 flag > 配置文件 > 默认值
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		fileCfg, err := config.LoadFromFile(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = *fileCfg
	}

	f := cmd.Flags()
	if f.Changed("wsl") {
		cfg.WSLPath = flags.cfg.WSLPath
	}
	if f.Changed("mount-root") {
		cfg.MountRoot = flags.cfg.MountRoot
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = flags.cfg.PollInterval
	}
	if f.Changed("on-corrupt") {
		cfg.OnCorrupt = flags.cfg.OnCorrupt
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.cfg.LogLevel
	}
	if f.Changed("log-file") {
		cfg.LogFile = flags.cfg.LogFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 初始化日志
	if err := sysutil.InitLogger(sysutil.LogOptions{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return err
	}
	defer sysutil.Log.Sync()

	sysutil.Log.Info("🛡️ WSL automount agent starting...",
		zap.String("wsl", cfg.WSLPath),
		zap.String("mountRoot", cfg.MountRoot),
		zap.String("onCorrupt", cfg.OnCorrupt),
	)

	// 捕获操作系统信号，优雅退出
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcherOpts, err := cfg.WatcherOptions()
	if err != nil {
		sysutil.Log.Error("Invalid watcher options", zap.Error(err))
		return err
	}

	// WMI 连接在进程生命周期内只建立一次
	volumes, err := watcher.New(watcherOpts, sysutil.Log)
	if err != nil {
		sysutil.Log.Error("Watcher init failed", zap.Error(err))
		return err
	}
	defer volumes.Close()

	wsl := mounter.New(cfg.MounterOptions())

	if err := agent.Run(ctx, volumes, wsl, sysutil.Log); err != nil {
		sysutil.Log.Error("Watch loop terminated", zap.Error(err))
		return err
	}
	sysutil.Log.Info("Shutting down...")
	return nil
}
