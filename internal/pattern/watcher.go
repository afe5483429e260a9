package pattern

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watch 监听 pattern 目录树,文件变动后(防抖)使缓存失效。ctx 取消时退出
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(w, s.dir); err != nil {
		w.Close()
		return err
	}

	go s.watchLoop(ctx, w, debounce)
	log.Printf("[Pattern] 开始监听目录: %s", s.dir)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, debounce time.Duration) {
	defer w.Close()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					addRecursive(w, event.Name)
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			s.Invalidate()
			log.Printf("[Pattern] 检测到目录变化,缓存已失效")

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("[Pattern] 监听错误: %v", err)
		}
	}
}

func addRecursive(w *fsnotify.Watcher, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			log.Printf("[Pattern] 无法监听 %s: %v", path, err)
		}
		return nil
	})
}
