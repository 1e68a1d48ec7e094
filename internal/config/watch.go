package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchFile 监听 path 的写入、创建与重命名事件，在 debounce 窗口内合并后调用 onChange，
// onChange 在调用方 goroutine 中串行执行。
// 监听父目录以兼容编辑器"写临时文件再重命名"的保存方式。ctx 取消后返回 nil。
func WatchFile(ctx context.Context, path string, debounce time.Duration, logger logrus.FieldLogger, onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("watch %s: onChange is required", path)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	entry := logger.WithFields(logrus.Fields{"action": "config_watch", "path": abs})
	entry.Info("watching plugin configuration")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watch %s: events channel closed", abs)
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			entry.WithField("op", event.Op.String()).Debug("plugin configuration changed")

			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watch %s: errors channel closed", abs)
			}
			entry.WithError(werr).Warn("config watcher error")
		}
	}
}
