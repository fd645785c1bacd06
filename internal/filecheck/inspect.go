// Package filecheck inspects files tracked by collections: it computes
// the SHA-256 checksum recorded at add time, re-verifies it on demand,
// and watches collection directories for changes on disk.
package filecheck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Report is the result of inspecting one file.
type Report struct {
	Path     string
	Name     string
	Size     int64
	Type     string // lowercase extension without the dot, "" if none
	Checksum string // SHA-256 hex digest, 64 characters
}

// Inspect stats and hashes the file at path.
func Inspect(path string) (*Report, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("filecheck: failed to stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("filecheck: %s is a directory", path)
	}

	sum, err := Checksum(path)
	if err != nil {
		return nil, err
	}

	return &Report{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     fi.Size(),
		Type:     fileType(path),
		Checksum: sum,
	}, nil
}

// Checksum returns the SHA-256 hex digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("filecheck: failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("filecheck: failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum re-hashes the file and compares against the digest
// recorded when it was added to a collection. A mismatch means the file
// changed on disk since ingestion.
func VerifyChecksum(path, want string) error {
	got, err := Checksum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("filecheck: checksum mismatch for %s: recorded %s, file is %s", path, want, got)
	}
	return nil
}

func fileType(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return strings.ToLower(ext)
}
