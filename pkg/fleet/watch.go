package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the write bursts editors and atomic-save tools
// produce into one reload.
const debounceWindow = 500 * time.Millisecond

// Watch re-loads the fleet file whenever it changes and invokes reloadFn
// with the expanded host set. Load or expansion failures are logged and
// skipped, keeping the last good host set in effect. Watch blocks until
// the context is cancelled.
func (l *Loader) Watch(ctx context.Context, path string, reloadFn func([]string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	l.logger.Info().Str("path", path).Msg("Watching fleet file")

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Atomic saves replace the file; re-add the watch for the
			// new inode.
			if event.Op&fsnotify.Rename != 0 {
				_ = watcher.Add(path)
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("Fleet watcher error")

		case <-reload:
			hosts, err := l.LoadHosts(path)
			if err != nil {
				l.logger.Error().Err(err).Msg("Fleet file reload failed; keeping previous host set")
				continue
			}
			if err := reloadFn(hosts); err != nil {
				l.logger.Error().Err(err).Msg("Fleet reload callback failed")
			}
		}
	}
}
