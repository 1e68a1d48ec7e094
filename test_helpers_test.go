package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fixtureDir 定位 internal/config/testdata，宿主配置与插件负载样例都放在那里。
func fixtureDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("无法定位测试文件")
	}
	dir := filepath.Join(filepath.Dir(file), "internal", "config", "testdata")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("缺少测试样例目录: %v", err)
	}
	return dir
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(fixtureDir(t), name)
}

// pluginFixture 返回 valid.toml 引用的插件负载路径。
func pluginFixture(t *testing.T) string {
	t.Helper()
	return filepath.Join(fixtureDir(t), "plugin.json")
}
