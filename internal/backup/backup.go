// Package backup takes point-in-time snapshots of the SQLite catalogue,
// prunes old ones and restores from them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/atelier/internal/logger"
)

const (
	snapshotPrefix = "atelier-catalogue-"
	snapshotExt    = ".db"
	timestampFmt   = "20060102-150405.000000"
)

// ErrRunning is returned by Restore while scheduled snapshots are running.
var ErrRunning = errors.New("snapshot schedule is running")

// Config holds snapshot settings.
type Config struct {
	// DBPath is the live catalogue database file.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Keep is the number of snapshots retained after each snapshot (default: 10).
	Keep int

	// Verify runs PRAGMA integrity_check on every new snapshot.
	Verify bool

	// Interval between scheduled snapshots. Zero disables Run.
	Interval time.Duration
}

// Snapshot describes one snapshot file.
type Snapshot struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
	Verified  bool      `json:"verified"`
}

// Service takes and restores catalogue snapshots.
type Service struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	running bool
	last    time.Time
	now     func() time.Time
}

// New validates cfg and creates the snapshot directory.
func New(cfg Config, log *logger.Logger) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 10
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Service{cfg: cfg, log: log, now: time.Now}, nil
}

// Snapshot writes a new snapshot, verifies it when configured and prunes
// snapshots beyond Keep. A pruning failure is logged, not returned.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	created := s.now()
	path := filepath.Join(s.cfg.Dir, snapshotPrefix+created.UTC().Format(timestampFmt)+snapshotExt)
	if err := vacuumInto(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	snap := &Snapshot{Path: path, CreatedAt: created, Size: info.Size()}

	if s.cfg.Verify {
		if err := verify(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("snapshot verification failed: %w", err)
		}
		snap.Verified = true
	}

	s.mu.Lock()
	s.last = created
	s.mu.Unlock()

	if removed, err := s.prune(); err != nil {
		s.log.Warn("failed to prune snapshots", "error", err)
	} else if removed > 0 {
		s.log.Debug("pruned snapshots", "removed", removed)
	}

	s.log.Info("catalogue snapshot written", "path", path, "bytes", snap.Size, "verified", snap.Verified)
	return snap, nil
}

// List returns snapshots, newest first.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		created, err := time.Parse(timestampFmt, strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{
			Path:      filepath.Join(s.cfg.Dir, name),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// prune removes every snapshot beyond the newest Keep.
func (s *Service) prune() (int, error) {
	snaps, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(snaps) <= s.cfg.Keep {
		return 0, nil
	}

	var errs []error
	removed := 0
	for _, snap := range snaps[s.cfg.Keep:] {
		if err := os.Remove(snap.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Run snapshots every Interval until ctx is cancelled. It returns at once
// when Interval is zero.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return nil
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.log.Info("scheduled snapshots started", "interval", s.cfg.Interval, "dir", s.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Snapshot(ctx); err != nil {
				s.log.Error("scheduled snapshot failed", "error", err)
			}
		}
	}
}

// LastSnapshot returns when the last snapshot was taken by this service.
func (s *Service) LastSnapshot() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Restore replaces the live database with a verified snapshot. Nothing may
// have the database open. On failure the previous file is put back.
func (s *Service) Restore(ctx context.Context, snapshotPath string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrRunning
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}
	if err := verify(ctx, snapshotPath); err != nil {
		return fmt.Errorf("snapshot verification failed: %w", err)
	}

	preRestore := s.cfg.DBPath + ".pre-restore"
	hadLive := false
	if _, err := os.Stat(s.cfg.DBPath); err == nil {
		if err := vacuumInto(ctx, s.cfg.DBPath, preRestore); err != nil {
			return fmt.Errorf("failed to save current database: %w", err)
		}
		hadLive = true
		defer func() { _ = os.Remove(preRestore) }()
	}

	if err := copyFile(ctx, snapshotPath, s.cfg.DBPath); err != nil {
		if hadLive {
			if rbErr := copyFile(ctx, preRestore, s.cfg.DBPath); rbErr != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", rbErr, err)
			}
			return fmt.Errorf("restore failed, rolled back: %w", err)
		}
		return err
	}

	s.log.Info("catalogue restored from snapshot", "path", snapshotPath)
	return nil
}
