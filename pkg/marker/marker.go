// Package marker records when each cache was last synced, so that
// subsequent syncs can skip rsync entirely when nothing has changed.
//
// Change detection is a shallow heuristic. The fingerprint of a source
// directory is the newest modification time of the directory itself and its
// immediate children. This catches new or replaced top-level entries cheaply,
// but not edits deep inside the tree. Those are picked up by rsync on the next
// sync that isn't skipped, at the latest once the freshness window expires.
package marker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sidkik/scratchsync/pkg/errors"
)

// Marker is the on-disk record of the last successful sync. Times are
// stored as fractional Unix seconds.
type Marker struct {
	SyncedAt    float64 `json:"synced_at"`
	SourceMtime float64 `json:"source_mtime"`
	VarName     string  `json:"var_name"`
	Source      string  `json:"source"`
}

// SyncedTime returns SyncedAt as a time.Time.
func (m Marker) SyncedTime() time.Time {
	return fromUnix(m.SyncedAt)
}

// Store reads and writes markers.
type Store struct {
	fs      afero.Fs
	clock   clockwork.Clock
	pathFor func(name string) string
}

// New creates a Store. pathFor maps a var name to its marker path.
func New(fs afero.Fs, clock clockwork.Clock, pathFor func(string) string) *Store {
	return &Store{fs: fs, clock: clock, pathFor: pathFor}
}

// Read returns the marker for the given var.
func (s *Store) Read(name string) (Marker, error) {
	path := s.pathFor(name)
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, errors.FileNotFound{Path: path}
		}
		return Marker{}, errors.WithContext(err, "read")
	}

	var m Marker
	if err := json.Unmarshal(b, &m); err != nil {
		return Marker{}, errors.WithContext(err, "parse")
	}
	return m, nil
}

// ShouldSkip returns true if the var was synced within window and the source
// hasn't changed since. Any problem reading the marker or the source is
// treated as a reason to sync.
func (s *Store) ShouldSkip(name, source string, window time.Duration) bool {
	m, err := s.Read(name)
	if err != nil {
		return false
	}

	if s.clock.Since(m.SyncedTime()) > window {
		return false
	}

	current, err := Fingerprint(s.fs, source)
	if err != nil {
		return false
	}
	return toUnix(current) <= m.SourceMtime
}

// Write records a successful sync of source into the given var. If the
// source can't be fingerprinted, a zero fingerprint is recorded, which
// forces the next sync once the window expires.
func (s *Store) Write(name, source string) error {
	var sourceMtime float64
	if fingerprint, err := Fingerprint(s.fs, source); err == nil {
		sourceMtime = toUnix(fingerprint)
	}

	b, err := json.Marshal(Marker{
		SyncedAt:    toUnix(s.clock.Now()),
		SourceMtime: sourceMtime,
		VarName:     name,
		Source:      source,
	})
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	path := s.pathFor(name)
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create marker directory")
	}

	// Write to a temporary file first so that concurrent readers never see
	// a partially written marker.
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(path)+".tmp")
	if err != nil {
		return errors.WithContext(err, "create temp file")
	}
	defer s.fs.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.WithContext(err, "write")
	}
	if err := tmp.Close(); err != nil {
		return errors.WithContext(err, "close")
	}

	if err := s.fs.Rename(tmp.Name(), path); err != nil {
		return errors.WithContext(err, "rename")
	}
	return nil
}

// Fingerprint returns the newest modification time among dir and its
// immediate children. Children that can't be listed due to permissions are
// ignored.
func Fingerprint(fs afero.Fs, dir string) (time.Time, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}

	newest := info.ModTime()
	children, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsPermission(err) {
			return newest, nil
		}
		return time.Time{}, err
	}

	for _, child := range children {
		if child.ModTime().After(newest) {
			newest = child.ModTime()
		}
	}
	return newest, nil
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(secs float64) time.Time {
	return time.Unix(0, int64(secs*float64(time.Second)))
}
