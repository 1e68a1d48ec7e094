package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestWatchFileDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("写入初始文件失败: %v", err)
	}

	logger, _ := test.NewNullLogger()
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, 100*time.Millisecond, logger, func() {
			calls.Add(1)
			fired <- struct{}{}
		})
	}()

	// 等待 watcher 完成注册
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{"redis_nodes":["a:1"]}`), 0o600); err != nil {
			t.Fatalf("写入文件失败: %v", err)
		}
	}
	// 同目录下的其他文件不应触发回调
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{}`), 0o600); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("写入后应触发回调")
	}
	time.Sleep(300 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("连续写入应合并为一次回调, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ctx 取消后应正常返回: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WatchFile 未在 ctx 取消后返回")
	}
}

func TestWatchFileRequiresCallback(t *testing.T) {
	if err := WatchFile(context.Background(), "plugin.json", time.Millisecond, nil, nil); err == nil {
		t.Fatalf("缺少回调应报错")
	}
}

func TestWatchFileRunsCallbacksSerially(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("写入初始文件失败: %v", err)
	}

	logger, _ := test.NewNullLogger()
	var active, maxActive, calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = WatchFile(ctx, path, 20*time.Millisecond, logger, func() {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(200 * time.Millisecond)
			active.Add(-1)
			calls.Add(1)
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"redis_nodes":["a:1"]}`), 0o600); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}
	// 第二次写入落在第一次回调执行期间
	time.Sleep(80 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"redis_nodes":["b:2"]}`), 0o600); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("写入期间的变更应在回调结束后再次触发, got %d calls", calls.Load())
	}
	if got := maxActive.Load(); got != 1 {
		t.Fatalf("回调不应并发执行, max concurrent %d", got)
	}
}
