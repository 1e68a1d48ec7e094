package config

import (
	"os"
	"path/filepath"
	"testing"
)

// fixturePath 返回 testdata 下的宿主配置或插件负载样例。
func fixturePath(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	if _, err := os.Stat(path); err != nil && name != "absent.toml" {
		t.Fatalf("缺少测试样例 %s: %v", name, err)
	}
	return path
}

// writeTempConfig 在临时目录写入 config.toml；提供 pluginPayload 时在同目录写入 plugin.json。
func writeTempConfig(t *testing.T, content string, pluginPayload ...string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	if len(pluginPayload) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(pluginPayload[0]), 0o600); err != nil {
			t.Fatalf("写入插件负载失败: %v", err)
		}
	}
	return path
}
