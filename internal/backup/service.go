package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds backup service configuration.
type Config struct {
	// DBPath is the conversation database file to back up.
	DBPath string

	// Dir is the directory snapshots are written to.
	Dir string

	// Interval between scheduled backups (default: 1 hour).
	Interval time.Duration

	// Retention controls how many snapshots survive per age tier.
	Retention RetentionPolicy

	// Verify runs an integrity check on every snapshot after writing it.
	Verify bool
}

// Result describes one completed (or failed) backup.
type Result struct {
	Path     string
	Duration time.Duration
	Size     int64
	Verified bool
}

// Service runs scheduled backups of the conversation database.
type Service struct {
	dbPath    string
	dir       string
	interval  time.Duration
	retention RetentionPolicy
	verify    bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	lastRun time.Time
}

// NewService validates the configuration, applies defaults, and creates
// the backup directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	cfg.Retention.applyDefaults()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	return &Service{
		dbPath:    cfg.DBPath,
		dir:       cfg.Dir,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		verify:    cfg.Verify,
		stopCh:    make(chan struct{}),
	}, nil
}

// Run performs backups at the configured interval until the context is
// cancelled or Stop is called.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup: service already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("backup: service started, interval=%v dir=%s", s.interval, s.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			res, err := s.BackupNow()
			if err != nil {
				log.Printf("backup: scheduled backup failed: %v", err)
				continue
			}
			log.Printf("backup: wrote %s (%d bytes in %v, verified=%v)",
				res.Path, res.Size, res.Duration.Round(time.Millisecond), res.Verified)
		}
	}
}

// Stop terminates a running service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// BackupNow takes an immediate snapshot, verifies it if configured, and
// applies the retention policy.
func (s *Service) BackupNow() (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.dbPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}

	// Microsecond precision keeps names unique even under rapid manual runs.
	name := fmt.Sprintf("convstore-%s.db", start.Format("20060102-150405.000000"))
	path := filepath.Join(s.dir, name)

	if err := snapshot(s.dbPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat snapshot: %w", err)
	}

	res := &Result{Path: path, Duration: time.Since(start), Size: info.Size()}
	if s.verify {
		if err := Verify(path); err != nil {
			return res, err
		}
		res.Verified = true
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err := applyRetention(s.dir, s.retention); err != nil {
		log.Printf("backup: retention sweep failed (non-fatal): %v", err)
	}

	return res, nil
}

// List returns the snapshots currently on disk, newest first.
func (s *Service) List() ([]Info, error) {
	return listSnapshots(s.dir)
}

// Restore replaces the live database with the named snapshot. The store
// must be closed first. The current database is snapshotted to a
// .pre-restore file and rolled back to if the restore fails.
func (s *Service) Restore(snapshotPath string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return fmt.Errorf("backup: cannot restore while service is running")
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("backup: snapshot not found: %w", err)
	}

	preRestore := s.dbPath + ".pre-restore"
	haveCurrent := false
	if _, err := os.Stat(s.dbPath); err == nil {
		if err := snapshot(s.dbPath, preRestore); err != nil {
			return fmt.Errorf("backup: failed to snapshot current database: %w", err)
		}
		haveCurrent = true
	}

	if err := restore(snapshotPath, s.dbPath); err != nil {
		if haveCurrent {
			if rbErr := restore(preRestore, s.dbPath); rbErr != nil {
				return fmt.Errorf("backup: restore failed and rollback failed: %v (restore error: %w)", rbErr, err)
			}
			return fmt.Errorf("backup: restore failed, rolled back: %w", err)
		}
		return err
	}

	if haveCurrent {
		os.Remove(preRestore)
	}
	log.Printf("backup: database restored from %s", snapshotPath)
	return nil
}

// BeforeMigration takes a one-shot verified snapshot into dir, named so
// it is recognizable as a pre-migration safety copy. The caller aborts
// the migration if this fails.
func BeforeMigration(dbPath, dir string) (string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			// A database that does not exist yet has nothing to protect.
			return "", nil
		}
		return "", fmt.Errorf("backup: failed to stat database: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("convstore-premigrate-%s.db", time.Now().Format("20060102-150405.000000"))
	path := filepath.Join(dir, name)

	if err := snapshot(dbPath, path); err != nil {
		return "", err
	}
	if err := Verify(path); err != nil {
		return "", err
	}
	return path, nil
}
