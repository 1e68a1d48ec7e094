package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/heimdall/heimdall/internal/config"
)

func TestInitLoggerDefaultsToStdout(t *testing.T) {
	logger, err := InitLogger(config.GlobalConfig{})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("未设置级别时应为 info, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("应使用 JSON formatter")
	}
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := InitLogger(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("未知日志级别应报错")
	}
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 用户不受目录权限限制")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	logger, err := InitLogger(config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "heimdall.log"),
	})
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestInitLoggerCreatesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "heimdall.log")
	logger, err := InitLogger(config.GlobalConfig{LogLevel: "warn", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Warn("#request_header 1 -> :path: /")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("日志文件不应为空")
	}
}

func TestExchangeFields(t *testing.T) {
	fields := ExchangeFields(9, "req-1", "GET", "/get")
	if fields["exchange_id"] != uint32(9) || fields["request_id"] != "req-1" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if ReloadFields("p.json", 2)["action"] != "plugin_reload" {
		t.Fatalf("reload fields should carry action")
	}
}
