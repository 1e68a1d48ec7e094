package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述宿主进程的运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	BodyChunkSize   int      `mapstructure:"BodyChunkSize"`
	MaxBufferedBody int      `mapstructure:"MaxBufferedBody"`

	// PluginConfig 指向交给 Root 的 JSON 负载文件，留空表示不提供配置。
	PluginConfig      string   `mapstructure:"PluginConfig"`
	WatchPluginConfig bool     `mapstructure:"WatchPluginConfig"`
	WatchDebounce     Duration `mapstructure:"WatchDebounce"`
}

// ProbeConfig 控制启动探测的目标与失败策略。
type ProbeConfig struct {
	Hostname string   `mapstructure:"Hostname"`
	Scheme   string   `mapstructure:"Scheme"`
	Path     string   `mapstructure:"Path"`
	Fallback string   `mapstructure:"Fallback"`
	Timeout  Duration `mapstructure:"Timeout"`
	FailFast bool     `mapstructure:"FailFast"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Probe  ProbeConfig  `mapstructure:"Probe"`
}
