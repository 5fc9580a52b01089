// Package notify propagates catalogue changes between processes that share a
// data directory, such as a running server and one-off CLI invocations.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/atelier/pkg/types"
)

// EventCatalogueChanged is written after entities or categories are created.
const EventCatalogueChanged = "catalogue_changed"

const eventExt = ".event"

// Event is the payload written to an event file. An empty Kind means every kind.
type Event struct {
	Type string           `json:"type"`
	Kind types.EntityKind `json:"kind,omitempty"`
	Time int64            `json:"time"`
}

// EventWriter writes event files to {dataPath}/events/.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer for the given data directory.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: eventsDir(dataPath)}
}

// CatalogueChanged records that the catalogue for kind was modified.
func (w *EventWriter) CatalogueChanged(kind types.EntityKind) error {
	return w.write(Event{Type: EventCatalogueChanged, Kind: kind, Time: time.Now().UnixNano()})
}

// write stages the file under a temporary name and renames it into place so
// watchers never observe a partially written event.
func (w *EventWriter) write(evt Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	kind := string(evt.Kind)
	if kind == "" {
		kind = "all"
	}
	name := fmt.Sprintf("%d-%s-%s", evt.Time, kind, uuid.NewString()[:8])
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filepath.Join(w.dir, name+eventExt)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

func eventsDir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}
