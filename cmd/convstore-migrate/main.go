// Command convstore-migrate manages the conversation database schema:
// it reports the schema version, walks the migration chain up or down,
// and takes verified snapshots before touching anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/specterhq/convstore/internal/backup"
	"github.com/specterhq/convstore/internal/config"
	"github.com/specterhq/convstore/internal/migrate"
	"github.com/specterhq/convstore/internal/storage/sqlite"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, env vars by default)")
	dbPath     = flag.String("db", "", "Path to database file (overrides config)")
	backupDir  = flag.String("backup-dir", "", "Snapshot directory (overrides config)")
	target     = flag.Int("to", 0, "Target schema version for up/down (0 = head for up, empty for down)")
	revision   = flag.String("rev", "", "Revision ID for apply/revert")
	noBackup   = flag.Bool("no-backup", false, "Skip the pre-migration snapshot")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: convstore-migrate [flags] <command>

Commands:
  status    Show current schema version, head, and pending steps
  up        Upgrade to head (or -to N)
  down      Downgrade to an empty schema (or -to N)
  apply     Apply the single step named by -rev
  revert    Revert the single step named by -rev
  backup    Take a verified snapshot and exit
  restore   Restore the database from the snapshot given as an argument
  verify    Run an integrity check on the database (or a snapshot argument)
  list      List snapshots

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg := loadConfig()
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if *backupDir != "" {
		cfg.Backup.Dir = *backupDir
	}

	ctx := context.Background()

	switch command {
	case "status":
		runStatus(ctx, cfg)
	case "up":
		runMigration(ctx, cfg, func(r *migrate.Runner) error {
			return r.Up(ctx, *target)
		})
	case "down":
		runMigration(ctx, cfg, func(r *migrate.Runner) error {
			return r.Down(ctx, *target)
		})
	case "apply":
		requireRevision()
		runMigration(ctx, cfg, func(r *migrate.Runner) error {
			return r.Apply(ctx, *revision)
		})
	case "revert":
		requireRevision()
		runMigration(ctx, cfg, func(r *migrate.Runner) error {
			return r.Revert(ctx, *revision)
		})
	case "backup":
		runBackup(cfg)
	case "restore":
		if flag.NArg() < 2 {
			log.Fatalf("restore requires a snapshot path")
		}
		runRestore(cfg, flag.Arg(1))
	case "verify":
		path := cfg.Storage.DBPath
		if flag.NArg() >= 2 {
			path = flag.Arg(1)
		}
		if err := backup.Verify(path); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		fmt.Printf("%s: ok\n", path)
	case "list":
		runList(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		usage()
		os.Exit(2)
	}
}

func loadConfig() *config.Config {
	if *configPath != "" {
		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		return cfg
	}
	return config.Load()
}

func requireRevision() {
	if *revision == "" {
		log.Fatalf("apply/revert require -rev")
	}
}

func runStatus(ctx context.Context, cfg *config.Config) {
	db, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	runner, err := migrate.NewRunner(db.SQL(), migrate.Revisions())
	if err != nil {
		log.Fatalf("Failed to resolve migration chain: %v", err)
	}

	status, err := runner.Status(ctx)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}

	if status.Current == 0 {
		fmt.Println("Current: unversioned (no schema)")
	} else {
		fmt.Printf("Current: %d (%s)\n", status.Current, status.CurrentRevision)
	}
	fmt.Printf("Head:    %d (%s)\n", status.Head, status.HeadRevision)
	if pending := status.Pending(); pending > 0 {
		fmt.Printf("Pending: %d step(s)\n", pending)
		os.Exit(1)
	}
	fmt.Println("Schema is up to date")
}

func runMigration(ctx context.Context, cfg *config.Config, fn func(*migrate.Runner) error) {
	if cfg.Migrate.AutoBackup && !*noBackup {
		path, err := backup.BeforeMigration(cfg.Storage.DBPath, cfg.Backup.Dir)
		if err != nil {
			log.Fatalf("Pre-migration snapshot failed, aborting: %v", err)
		}
		if path != "" {
			log.Printf("Pre-migration snapshot: %s", path)
		}
	}

	db, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	lockPath := filepath.Join(filepath.Dir(cfg.Storage.DBPath),
		filepath.Base(cfg.Storage.DBPath)+".migrate.lock")
	runner, err := migrate.NewRunner(db.SQL(), migrate.Revisions(), migrate.WithLockFile(lockPath))
	if err != nil {
		log.Fatalf("Failed to resolve migration chain: %v", err)
	}

	if err := fn(runner); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Done")
}

func runBackup(cfg *config.Config) {
	service := newBackupService(cfg)
	result, err := service.BackupNow()
	if err != nil {
		log.Fatalf("Backup failed: %v", err)
	}
	log.Printf("Backup completed: %s (%.2f MB in %v, verified=%v)",
		result.Path, float64(result.Size)/(1024*1024),
		result.Duration.Round(time.Millisecond), result.Verified)
}

func runRestore(cfg *config.Config, snapshotPath string) {
	service := newBackupService(cfg)
	if err := service.Restore(snapshotPath); err != nil {
		log.Fatalf("Restore failed: %v", err)
	}
	log.Println("Database restored successfully")
}

func runList(cfg *config.Config) {
	service := newBackupService(cfg)
	snaps, err := service.List()
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshots found")
		return
	}
	fmt.Printf("Found %d snapshot(s):\n\n", len(snaps))
	for i, s := range snaps {
		fmt.Printf("%d. %s\n", i+1, s.Path)
		fmt.Printf("   Size: %.2f MB\n", float64(s.Size)/(1024*1024))
		fmt.Printf("   Created: %s (%s ago)\n",
			s.Timestamp.Format(time.RFC3339),
			time.Since(s.Timestamp).Round(time.Minute))
		fmt.Println()
	}
}

func newBackupService(cfg *config.Config) *backup.Service {
	service, err := backup.NewService(backup.Config{
		DBPath:   cfg.Storage.DBPath,
		Dir:      cfg.Backup.Dir,
		Interval: cfg.BackupInterval(),
		Retention: backup.RetentionPolicy{
			Hourly:  cfg.Backup.RetentionHourly,
			Daily:   cfg.Backup.RetentionDaily,
			Weekly:  cfg.Backup.RetentionWeekly,
			Monthly: cfg.Backup.RetentionMonthly,
		},
		Verify: cfg.Backup.Verify,
	})
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}
	return service
}
