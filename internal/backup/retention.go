package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionPolicy caps how many snapshots survive in each age tier.
// Tiers are bucketed by age at sweep time: hourly (< 24h), daily
// (1-7 days), weekly (7-30 days), monthly (30-365 days). Snapshots older
// than a year are always removed.
type RetentionPolicy struct {
	Hourly  int
	Daily   int
	Weekly  int
	Monthly int
}

func (p *RetentionPolicy) applyDefaults() {
	if p.Hourly == 0 {
		p.Hourly = 24
	}
	if p.Daily == 0 {
		p.Daily = 7
	}
	if p.Weekly == 0 {
		p.Weekly = 4
	}
	if p.Monthly == 0 {
		p.Monthly = 12
	}
}

// Info describes one snapshot file on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// listSnapshots returns the .db files under dir, newest first.
func listSnapshots(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read directory: %w", err)
	}

	var snaps []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: fi.ModTime(),
			Size:      fi.Size(),
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

// applyRetention deletes snapshots beyond the per-tier caps.
func applyRetention(dir string, policy RetentionPolicy) error {
	snaps, err := listSnapshots(dir)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return nil
	}

	now := time.Now()
	var hourly, daily, weekly, monthly []Info
	var doomed []string

	for _, s := range snaps {
		age := now.Sub(s.Timestamp)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, s)
		case age < 7*24*time.Hour:
			daily = append(daily, s)
		case age < 30*24*time.Hour:
			weekly = append(weekly, s)
		case age < 365*24*time.Hour:
			monthly = append(monthly, s)
		default:
			doomed = append(doomed, s.Path)
		}
	}

	// Each tier list is newest-first, so the overflow at the tail is the
	// oldest within the tier.
	for _, tier := range []struct {
		snaps []Info
		keep  int
	}{
		{hourly, policy.Hourly},
		{daily, policy.Daily},
		{weekly, policy.Weekly},
		{monthly, policy.Monthly},
	} {
		if len(tier.snaps) > tier.keep {
			for _, s := range tier.snaps[tier.keep:] {
				doomed = append(doomed, s.Path)
			}
		}
	}

	var lastErr error
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("backup: failed to delete some snapshots: %w", lastErr)
	}
	return nil
}

// DiskUsage reports the total bytes consumed by snapshots under dir.
func DiskUsage(dir string) (int64, error) {
	snaps, err := listSnapshots(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range snaps {
		total += s.Size
	}
	return total, nil
}
