package config

import (
	"os"
	"testing"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(fixturePath(t, "absent.toml")); err == nil {
		t.Fatalf("不存在的配置文件应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
Upstream = "http://127.0.0.1:8080"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadKeepsAbsolutePluginConfig(t *testing.T) {
	cfg := `
Upstream = "http://127.0.0.1:8080"
PluginConfig = "/etc/heimdall/plugin.json"
WatchPluginConfig = true

[Probe]
FailFast = true
Fallback = "10.0.0.1:8080"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.PluginConfig != "/etc/heimdall/plugin.json" {
		t.Fatalf("绝对路径不应被改写: %s", loaded.Global.PluginConfig)
	}
	if !loaded.Probe.FailFast || loaded.Probe.Hostname != "httpbin.org" {
		t.Fatalf("Probe 段解析错误: %+v", loaded.Probe)
	}
	addr, err := loaded.Probe.FallbackAddr()
	if err != nil || addr.Port() != 8080 {
		t.Fatalf("Fallback 解析错误: %v %v", addr, err)
	}
}

func TestLoadResolvesPluginConfigNextToConfigFile(t *testing.T) {
	cfg := `
Upstream = "http://127.0.0.1:8080"
PluginConfig = "plugin.json"
`
	path := writeTempConfig(t, cfg, `{"redis_nodes":["r1:6379"]}`)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	raw, err := os.ReadFile(loaded.Global.PluginConfig)
	if err != nil {
		t.Fatalf("PluginConfig 应指向配置文件旁的负载: %v", err)
	}
	if string(raw) != `{"redis_nodes":["r1:6379"]}` {
		t.Fatalf("unexpected payload %s", raw)
	}
}
