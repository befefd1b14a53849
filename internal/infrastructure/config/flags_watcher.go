package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RelaySource 提供当前生效的转发开关
type RelaySource interface {
	Relay() RelayConfig
}

// StaticRelay is a RelaySource that never changes.
type StaticRelay RelayConfig

// Relay 返回固定配置
func (s StaticRelay) Relay() RelayConfig {
	return RelayConfig(s)
}

// FlagsWatcher monitors the config file and hot-reloads the relay block.
// Readers always see a complete RelayConfig; reloads swap it atomically.
//
// Usage:
//
//	watcher, _ := NewFlagsWatcher(cfg.File, cfg.Relay, cfg.Telegram.Admins, logger)
//	_ = watcher.Start(ctx)
//	defer watcher.Close()
//	flags := watcher.Relay()
type FlagsWatcher struct {
	path    string
	admins  []int64
	current atomic.Pointer[RelayConfig]
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu       sync.Mutex
	onChange []func(RelayConfig)
}

// NewFlagsWatcher 创建转发开关热加载器
func NewFlagsWatcher(path string, initial RelayConfig, admins []int64, logger *zap.Logger) (*FlagsWatcher, error) {
	w := &FlagsWatcher{
		path:   path,
		admins: admins,
		logger: logger.With(zap.String("component", "flags-watcher")),
	}
	w.current.Store(&initial)

	if path == "" {
		return w, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher
	return w, nil
}

// Relay returns the flags currently in effect.
func (w *FlagsWatcher) Relay() RelayConfig {
	return *w.current.Load()
}

// OnChange 注册变更回调
func (w *FlagsWatcher) OnChange(fn func(RelayConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start 开始监听配置文件所在目录
// 编辑器常以 rename 方式保存, 所以监听目录而不是文件本身
func (w *FlagsWatcher) Start(ctx context.Context) error {
	if w.watcher == nil {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleWatchEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("Watcher error", zap.Error(err))
			}
		}
	}()

	w.logger.Info("Relay flags hot-reload watching started",
		zap.String("path", w.path),
	)
	return nil
}

// Close 关闭监听器
func (w *FlagsWatcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *FlagsWatcher) handleWatchEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if err := w.Reload(); err != nil {
		w.logger.Warn("Relay flags reload failed, keeping previous flags", zap.Error(err))
	}
}

// Reload 重新读取配置文件中的 relay 段
func (w *FlagsWatcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}

	// 从默认值开始, 叠加文件内容
	doc := struct {
		Relay RelayConfig `yaml:"relay"`
	}{Relay: DefaultRelayConfig()}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", w.path, err)
	}

	next := doc.Relay
	next.normalize(w.admins)
	w.current.Store(&next)

	w.logger.Info("Relay flags reloaded",
		zap.String("path", w.path),
		zap.Bool("multiple_slave_chats", next.MultipleSlaveChats),
		zap.String("send_to_last_chat", next.SendToLastChat),
	)

	w.mu.Lock()
	callbacks := append([]func(RelayConfig){}, w.onChange...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(next)
	}
	return nil
}
