package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 默认防抖时间
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback 文件变更回调函数，err 表示重载是否成功
//
// 回调在 Run 的 goroutine 中同步执行，Run 返回后不会再有回调。
type WatchCallback func(cfg Config, err error)

// Watcher 配置文件监视器
type Watcher struct {
	cfg      *koanfConfig
	fs       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// WatchOption 监视器配置选项
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 创建配置文件监视器
//
// 监视的是文件所在目录而非文件本身：编辑器保存时可能先删除再创建，
// 直接监视文件会丢失后续事件。返回的 Watcher 需要调用 Run 开始监视。
//
//	cfg, _ := xconf.New("/etc/app/config.yaml")
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) {
//	    if err != nil {
//	        return
//	    }
//	    // 应用新配置
//	})
//	if err != nil {
//	    return err
//	}
//	go w.Run(ctx)
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return nil, fmt.Errorf("xconf: unsupported config type %T", cfg)
	}
	if kc.isBytes || kc.path == "" {
		return nil, ErrNotFromFile
	}

	options := &watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: failed to create watcher: %w", err)
	}
	dir := filepath.Dir(kc.path)
	if err := fsWatcher.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("xconf: failed to watch directory %s: %w", dir, err),
			fsWatcher.Close(),
		)
	}

	return &Watcher{
		cfg:      kc,
		fs:       fsWatcher,
		callback: callback,
		debounce: options.debounce,
		done:     make(chan struct{}),
	}, nil
}

// Run 阻塞监视直到 ctx 结束或 Close 被调用，退出时释放 fsnotify 资源
//
// 签名与 xrun.Group.Go 兼容。正常退出返回 nil。
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.Close() }()

	filename := filepath.Base(w.cfg.path)
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
		case <-w.done:
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !relevant(event, filename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			err := w.cfg.Reload()
			if w.callback != nil {
				w.callback(w.cfg, err)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if w.callback != nil {
				w.callback(w.cfg, fmt.Errorf("xconf: watch error: %w", err))
			}
		}
	}
}

// relevant 只关心目标文件的写入、创建与改名
//
// vim/emacs 等编辑器先写临时文件再 rename，因此 Rename 也要处理。
func relevant(event fsnotify.Event, filename string) bool {
	if filepath.Base(event.Name) != filename {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// Close 停止监视，可重复调用
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fs.Close()
	})
	return w.closeErr
}
