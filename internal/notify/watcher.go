package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/atelier/internal/logger"
)

// EventWatcher watches the events directory and hands each event to a handler.
type EventWatcher struct {
	dir     string
	handler func(Event)
	log     *logger.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewEventWatcher creates a watcher for {dataPath}/events/.
func NewEventWatcher(dataPath string, handler func(Event), log *logger.Logger) *EventWatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &EventWatcher{
		dir:     eventsDir(dataPath),
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start drains events left from before startup, then watches for new ones.
// Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	// Drain after Add so nothing written in between is missed.
	ew.drainExisting()

	go ew.loop()
	ew.log.Info("watching for catalogue change events", "dir", ew.dir)
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (ew *EventWatcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && isEventFile(evt.Name) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.log.Warn("event watcher error", "error", err)
		}
	}
}

func (ew *EventWatcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && isEventFile(entry.Name()) {
			ew.processFile(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // already consumed
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		ew.log.Warn("invalid event file", "file", filepath.Base(path), "error", err)
		return
	}
	if event.Type == "" || ew.handler == nil {
		return
	}
	ew.handler(event)
}

func isEventFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, eventExt) && !strings.HasPrefix(base, ".")
}
