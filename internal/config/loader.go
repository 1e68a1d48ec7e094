package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyProbeDefaults(&cfg.Probe)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 插件负载路径相对配置文件所在目录解析。
	if cfg.Global.PluginConfig != "" && !filepath.IsAbs(cfg.Global.PluginConfig) {
		cfg.Global.PluginConfig = filepath.Join(filepath.Dir(path), cfg.Global.PluginConfig)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("BodyChunkSize", 16*1024)
	v.SetDefault("MaxBufferedBody", 0)
	v.SetDefault("WatchPluginConfig", false)
	v.SetDefault("WatchDebounce", "200ms")
	v.SetDefault("Probe.Hostname", "httpbin.org")
	v.SetDefault("Probe.Scheme", "http")
	v.SetDefault("Probe.Path", "/")
	v.SetDefault("Probe.Fallback", "34.203.186.29:80")
	v.SetDefault("Probe.Timeout", 0)
	v.SetDefault("Probe.FailFast", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.BodyChunkSize == 0 {
		g.BodyChunkSize = 16 * 1024
	}
	if g.WatchDebounce.DurationValue() == 0 {
		g.WatchDebounce = Duration(200 * time.Millisecond)
	}
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
}

func applyProbeDefaults(p *ProbeConfig) {
	p.Hostname = strings.TrimSpace(p.Hostname)
	p.Scheme = strings.ToLower(strings.TrimSpace(p.Scheme))
	if p.Path == "" {
		p.Path = "/"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
