package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/internal/logging"
)

// HaltSignal is the file name that requests a halt.
const HaltSignal = "halt"

// SignalsDir returns the signal directory of a project.
func SignalsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".weave", "signals")
}

// SendHalt asks a workflow running in projectRoot to halt.
func SendHalt(projectRoot, reason string) error {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	body := time.Now().UTC().Format(time.RFC3339)
	if reason != "" {
		body += " " + reason
	}
	return os.WriteFile(filepath.Join(dir, HaltSignal), []byte(body+"\n"), 0644)
}

// ClearHalt removes a pending halt signal.
func ClearHalt(projectRoot string) error {
	err := os.Remove(filepath.Join(SignalsDir(projectRoot), HaltSignal))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// HaltWatcher calls onHalt once when a halt signal file appears.
type HaltWatcher struct {
	dir    string
	onHalt func(reason string)
	logger *zap.Logger

	once    sync.Once
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewHaltWatcher watches the signals directory of projectRoot. Without a
// working file watcher it still answers Check by stat'ing the signal file.
func NewHaltWatcher(projectRoot string, onHalt func(reason string), logger *zap.Logger) (*HaltWatcher, error) {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	hw := &HaltWatcher{
		dir:    dir,
		onHalt: onHalt,
		logger: logging.OrNop(logger),
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		hw.logger.Warn("workflow: file watcher unavailable", zap.Error(err))
		return hw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		hw.logger.Warn("workflow: cannot watch signals directory", zap.String("dir", dir), zap.Error(err))
		return hw, nil
	}
	hw.watcher = watcher

	hw.wg.Add(1)
	go hw.watch()
	return hw, nil
}

func (hw *HaltWatcher) watch() {
	defer hw.wg.Done()
	for {
		select {
		case <-hw.done:
			return
		case event, ok := <-hw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != HaltSignal {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				hw.fire()
			}
		case err, ok := <-hw.watcher.Errors:
			if !ok {
				return
			}
			hw.logger.Debug("workflow: watcher error", zap.Error(err))
		}
	}
}

// Check fires the halt callback if the signal file exists, covering
// events the watcher missed. It reports whether the file was found.
func (hw *HaltWatcher) Check() bool {
	if _, err := os.Stat(filepath.Join(hw.dir, HaltSignal)); err != nil {
		return false
	}
	hw.fire()
	return true
}

func (hw *HaltWatcher) fire() {
	hw.once.Do(func() {
		reason := "halt signal received"
		if data, err := os.ReadFile(filepath.Join(hw.dir, HaltSignal)); err == nil && len(data) > 0 {
			reason = fmt.Sprintf("%s (%s)", reason, trimLine(string(data)))
		}
		hw.logger.Info("workflow: halt signal", zap.String("reason", reason))
		hw.onHalt(reason)
	})
}

// Close stops watching and waits for the watcher goroutine to exit.
func (hw *HaltWatcher) Close() error {
	select {
	case <-hw.done:
		return nil
	default:
		close(hw.done)
	}
	var err error
	if hw.watcher != nil {
		err = hw.watcher.Close()
	}
	hw.wg.Wait()
	return err
}

func trimLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}
