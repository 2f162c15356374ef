package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Hara602/wslAutomount/internal/mounter"
	"github.com/Hara602/wslAutomount/internal/watcher"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config agent 配置, 所有字段都可省略
type Config struct {
	WSLPath      string        `yaml:"wsl_path"`
	MountRoot    string        `yaml:"mount_root"`    // WSL 内的 POSIX 路径
	PollInterval time.Duration `yaml:"poll_interval"` // e.g. "1s", WMI WITHIN 子句
	OnCorrupt    string        `yaml:"on_corrupt"`    // fatal | skip
	LogLevel     string        `yaml:"log_level"`
	LogFile      string        `yaml:"log_file,omitempty"`
}

func Default() Config {
	return Config{
		WSLPath:      mounter.DefaultWSLPath,
		MountRoot:    mounter.DefaultMountRoot,
		PollInterval: watcher.DefaultPollInterval,
		OnCorrupt:    string(watcher.CorruptFatal),
		LogLevel:     "info",
	}
}

// LoadFromFile 在默认值之上读取 YAML
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.WSLPath == "" {
		return fmt.Errorf("wsl_path is required")
	}
	if !strings.HasPrefix(c.MountRoot, "/") {
		return fmt.Errorf("mount_root must be an absolute path inside WSL, got %q", c.MountRoot)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0, got %s", c.PollInterval)
	}
	if _, err := watcher.ParseCorruptPolicy(c.OnCorrupt); err != nil {
		return fmt.Errorf("on_corrupt: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

func (c *Config) MounterOptions() mounter.Options {
	return mounter.Options{WSLPath: c.WSLPath, MountRoot: c.MountRoot}
}

func (c *Config) WatcherOptions() (watcher.Options, error) {
	policy, err := watcher.ParseCorruptPolicy(c.OnCorrupt)
	if err != nil {
		return watcher.Options{}, fmt.Errorf("on_corrupt: %w", err)
	}
	return watcher.Options{PollInterval: c.PollInterval, OnCorrupt: policy}, nil
}
