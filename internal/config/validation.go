package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

var supportedLogLevels = map[string]struct{}{
	"trace": {},
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, ok := supportedLogLevels[strings.ToLower(g.LogLevel)]; !ok {
			return newFieldError("Global.LogLevel", "仅支持 trace/debug/info/warn/error")
		}
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.BodyChunkSize <= 0 {
		return newFieldError("Global.BodyChunkSize", "必须大于 0")
	}
	if g.MaxBufferedBody < 0 {
		return newFieldError("Global.MaxBufferedBody", "不能为负数")
	}
	if g.WatchPluginConfig && g.PluginConfig == "" {
		return newFieldError("Global.WatchPluginConfig", "需要同时设置 PluginConfig")
	}

	p := c.Probe
	if p.Hostname == "" {
		return newFieldError(probeField("Hostname"), "不能为空")
	}
	if p.Scheme != "http" && p.Scheme != "https" {
		return newFieldError(probeField("Scheme"), "仅支持 http/https")
	}
	if !strings.HasPrefix(p.Path, "/") {
		return newFieldError(probeField("Path"), "必须以 / 开头")
	}
	if _, err := p.FallbackAddr(); err != nil {
		return newFieldError(probeField("Fallback"), "必须是 IP:端口 形式")
	}
	if p.Timeout.DurationValue() < 0 {
		return newFieldError(probeField("Timeout"), "不能为负数")
	}

	return nil
}

// FallbackAddr 解析 DNS 失败时使用的兜底地址。
func (p ProbeConfig) FallbackAddr() (netip.AddrPort, error) {
	return netip.ParseAddrPort(strings.TrimSpace(p.Fallback))
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
