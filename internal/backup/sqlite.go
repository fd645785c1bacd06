// Package backup creates and restores verified snapshots of the
// conversation database, with tiered retention for scheduled backups and
// one-shot safety snapshots taken before schema migrations.
package backup

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite" // SQLite driver
)

// snapshot writes a consistent copy of the database at sourcePath to
// destPath. VACUUM INTO produces a point-in-time copy that is correct
// under WAL mode, so the live store can keep serving while it runs.
func snapshot(sourcePath, destPath string) error {
	src, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer src.Close()

	if err := src.Ping(); err != nil {
		return fmt.Errorf("backup: source database unreachable: %w", err)
	}

	if _, err := src.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("backup: snapshot failed: %w", err)
	}
	return nil
}

// Verify opens the database at path read-only and runs SQLite's
// integrity check. A snapshot that fails this check is unusable and
// should never be restored.
func Verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: failed to open %s: %w", path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check reported: %s", result)
	}
	return nil
}

// restore copies a verified snapshot over the database at targetPath.
// The store must be closed; a live WAL would make the copy inconsistent.
func restore(snapshotPath, targetPath string) error {
	if err := Verify(snapshotPath); err != nil {
		return err
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("backup: failed to open snapshot: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("backup: failed to create target: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: failed to copy snapshot: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: failed to sync target: %w", err)
	}

	return Verify(targetPath)
}
