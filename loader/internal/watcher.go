package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch streams settled files from the source directory into fileChan. A
// file is settled when no create or write event arrived for the configured
// settle time, so half-copied files are not picked up. Files already in the
// directory at startup are queued on the first tick.
func (l *Loader) Watch(ctx context.Context, fileChan chan<- string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.cfg.SourceDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.cfg.SourceDir, err)
	}
	l.logger.Info("watching for documents", zap.String("dir", l.cfg.SourceDir))

	if err := l.scanExisting(); err != nil {
		l.logger.Warn("initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(l.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if path := l.noteEvent(event); path != "" {
				l.logger.Debug("file event",
					zap.String("op", event.Op.String()),
					zap.String("path", path),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			for _, path := range l.takeSettled(now) {
				l.logger.Info("file settled", zap.String("path", path))
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (l *Loader) tickInterval() time.Duration {
	interval := l.settleTime() / 2
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}
	return interval
}

func (l *Loader) settleTime() time.Duration {
	if l.cfg.SettleTime > 0 {
		return l.cfg.SettleTime
	}
	return 2 * time.Second
}

// noteEvent records a create or write event for a supported, visible file
// and returns the tracked path, or "" when the event is ignored. Remove and
// rename events drop the file from tracking.
func (l *Loader) noteEvent(event fsnotify.Event) string {
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		l.mu.Lock()
		delete(l.pending, event.Name)
		delete(l.processing, event.Name)
		l.mu.Unlock()
		return ""
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return ""
	}
	if isHidden(event.Name) || !supportedFile(event.Name) {
		return ""
	}
	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.processing[event.Name] {
		return ""
	}
	l.pending[event.Name] = time.Now()
	return event.Name
}

// takeSettled returns pending files whose last event is older than the
// settle time and marks them as processing.
func (l *Loader) takeSettled(now time.Time) []string {
	settle := l.settleTime()

	l.mu.Lock()
	defer l.mu.Unlock()

	var ready []string
	for path, last := range l.pending {
		if now.Sub(last) >= settle {
			delete(l.pending, path)
			l.processing[path] = true
			ready = append(ready, path)
		}
	}
	sort.Strings(ready)
	return ready
}

// Release clears the processing mark so a later event can reingest path.
func (l *Loader) Release(path string) {
	l.mu.Lock()
	delete(l.processing, path)
	l.mu.Unlock()
}

// scanExisting queues supported files already sitting in the source
// directory, backdated so the first tick picks them up.
func (l *Loader) scanExisting() error {
	entries, err := os.ReadDir(l.cfg.SourceDir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.cfg.SourceDir, entry.Name())
		if isHidden(path) || !supportedFile(path) {
			continue
		}
		l.pending[path] = time.Time{}
	}
	return nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func supportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".txt":
		return true
	}
	return false
}
