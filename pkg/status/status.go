// Package status reports how fresh each synced cache is and how much space
// it uses.
package status

import (
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/config"
	"github.com/sidkik/scratchsync/pkg/errors"
	"github.com/sidkik/scratchsync/pkg/marker"
)

// State summarizes whether a var's scratch copy can be trusted.
type State string

const (
	SourceMissing State = "source missing"
	NotSynced     State = "not synced"
	Stale         State = "stale"
	Fresh         State = "fresh"
)

// Entry is the status of a single var.
type Entry struct {
	Name    string
	Source  string
	Scratch string

	// Sizes are -1 if the directory doesn't exist.
	SourceSize  int64
	ScratchSize int64

	// LastSynced is "never", "corrupt", or the age of the marker.
	LastSynced string
	State      State
}

// Collect returns the status of every enabled var, sorted by name.
func Collect(fs afero.Fs, clock clockwork.Clock, cfg config.Config) []Entry {
	store := marker.New(fs, clock, cfg.MarkerPathFor)

	var entries []Entry
	for _, name := range cfg.SelectVars(nil) {
		entry := Entry{
			Name:       name,
			Source:     cfg.Vars[name].Source,
			Scratch:    cfg.ScratchDirFor(name),
			LastSynced: "never",
		}
		entry.SourceSize = DirSize(fs, entry.Source)
		entry.ScratchSize = DirSize(fs, entry.Scratch)

		stale := true
		m, err := store.Read(name)
		switch {
		case err == nil:
			age := clock.Since(m.SyncedTime())
			entry.LastSynced = FormatAge(age)
			stale = age > cfg.FreshnessWindow()
		case !isNotFound(err):
			entry.LastSynced = "corrupt"
		}

		switch {
		case entry.SourceSize < 0:
			entry.State = SourceMissing
		case entry.ScratchSize < 0:
			entry.State = NotSynced
		case stale:
			entry.State = Stale
		default:
			entry.State = Fresh
		}
		entries = append(entries, entry)
	}
	return entries
}

func isNotFound(err error) bool {
	_, ok := errors.RootCause(err).(errors.FileNotFound)
	return ok
}

// DirSize returns the total size of the regular files under path, or -1 if
// path doesn't exist. Unreadable subdirectories are skipped.
func DirSize(fs afero.Fs, path string) int64 {
	if exists, err := afero.Exists(fs, path); err != nil || !exists {
		return -1
	}

	var total int64
	afero.Walk(fs, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// HumanSize formats a byte count the way `du -h` does. Negative sizes are
// shown as "-".
func HumanSize(size int64) string {
	if size < 0 {
		return "-"
	}

	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%dB", size)
	}

	value := float64(size)
	suffixes := "KMGTPE"
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f%c", value, suffixes[i])
}

// FormatAge formats an age in the largest whole unit.
func FormatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}
