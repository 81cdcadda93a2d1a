package source

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/logging"
)

// DefaultDebounce collapses bursts of file events into one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange with the folders whose files were created, written or
// renamed, at most once per debounce period. It blocks until ctx is done and
// returns nil then. Callback errors are logged and do not stop the watch.
func Watch(ctx context.Context, folders []string, debounce time.Duration, onChange func(ctx context.Context, folders []string) error, logger *zap.SugaredLogger) error {
	logger = logging.OrComponent(logger, "watch")
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer w.Close()

	watched := make(map[string]string, len(folders))
	for _, f := range folders {
		if err := w.Add(f); err != nil {
			return errors.Wrapf(err, "watching %s", f)
		}
		watched[filepath.Clean(f)] = f
	}

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]bool)
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			folder, ok := watched[filepath.Dir(ev.Name)]
			if !ok {
				continue
			}
			logger.Debugw("Watch detected change", logging.FieldFile, filepath.Base(ev.Name), "op", ev.Op.String())
			pending[folder] = true
			stopTimer()
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			changed := make([]string, 0, len(pending))
			for f := range pending {
				changed = append(changed, f)
			}
			sort.Strings(changed)
			pending = make(map[string]bool)
			if err := onChange(ctx, changed); err != nil {
				logger.Warnw("Rescan failed", logging.FieldError, err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Watch error", logging.FieldError, err)
		}
	}
}
