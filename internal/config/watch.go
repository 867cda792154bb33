package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thewans/streamgate/internal/logger"
)

// FileWatcher reloads configuration when the config file changes on disk.
// Reload events are debounced because editors commonly emit several write
// events for a single save.
type FileWatcher struct {
	manager    *ConfigManager
	configPath string

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	debounceDelay time.Duration
	pendingReload *time.Timer
	reloadMutex   sync.Mutex
}

// NewFileWatcher creates a watcher for the given config file.
func NewFileWatcher(manager *ConfigManager, configPath string) (*FileWatcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for hot reload")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		manager:       manager,
		configPath:    configPath,
		watcher:       watcher,
		debounceDelay: 500 * time.Millisecond,
	}, nil
}

// Start begins watching the config file directory for changes.
func (fw *FileWatcher) Start(ctx context.Context) error {
	// Watch the directory, not the file: editors replace files on save and
	// a watch on the old inode would go stale.
	dir := filepath.Dir(fw.configPath)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	ctx, fw.cancel = context.WithCancel(ctx)

	fw.wg.Add(1)
	go fw.watchLoop(ctx)

	logger.Info("config hot reload enabled: %s", fw.configPath)
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (fw *FileWatcher) Stop() error {
	if fw.cancel != nil {
		fw.cancel()
	}
	err := fw.watcher.Close()
	fw.wg.Wait()
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(fw.configPath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	fw.reloadMutex.Lock()
	defer fw.reloadMutex.Unlock()

	if fw.pendingReload != nil {
		fw.pendingReload.Stop()
	}
	fw.pendingReload = time.AfterFunc(fw.debounceDelay, func() {
		if err := fw.manager.LoadConfig(fw.configPath); err != nil {
			logger.Error("config reload failed, keeping previous configuration: %v", err)
			return
		}
		logger.Info("configuration reloaded from %s", fw.configPath)
	})
}
