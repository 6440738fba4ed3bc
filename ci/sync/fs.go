package sync

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sidkik/scratchsync/pkg/errors"
)

type file struct {
	path     string
	contents string
	mode     os.FileMode
	modTime  time.Time
}

func (f file) WithContents(contents string) file {
	f.contents = contents
	return f
}

func (f file) WithMode(mode os.FileMode) file {
	f.mode = mode
	return f
}

func (f file) WithModTime(modTime time.Time) file {
	f.modTime = modTime
	return f
}

func randomFile(path string) file {
	randomTime := time.Date(2019, 11, 10, rand.Intn(23), rand.Intn(59), rand.Intn(59), 0, time.UTC)
	return file{
		path:     path,
		contents: strconv.Itoa(rand.Int()),
		mode:     os.FileMode(0640 | rand.Intn(8)),
		modTime:  randomTime,
	}
}

// createFile writes toCreate under dir, with its mode and modification time.
func createFile(dir string, toCreate file) error {
	path := filepath.Join(dir, toCreate.path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.WithContext(err, "create")
	}
	defer f.Close()

	_, err = io.Copy(f, bytes.NewReader([]byte(toCreate.contents)))
	if err != nil {
		return errors.WithContext(err, "write")
	}

	if err := os.Chmod(path, toCreate.mode); err != nil {
		return errors.WithContext(err, "chmod")
	}

	if err := os.Chtimes(path, time.Now(), toCreate.modTime); err != nil {
		return errors.WithContext(err, "chtimes")
	}
	return nil
}

// shouldExist checks that the file under dir matches exp, including the
// metadata that `rsync -a` preserves.
func shouldExist(dir string, exp file) error {
	path := filepath.Join(dir, exp.path)
	info, err := os.Stat(path)
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.WithContext(err, "read")
	}

	if string(contents) != exp.contents {
		return fmt.Errorf("%s: wrong contents: expected %q, got %q",
			exp.path, exp.contents, contents)
	}
	if info.Mode().Perm() != exp.mode.Perm() {
		return fmt.Errorf("%s: wrong mode: expected %s, got %s",
			exp.path, exp.mode.Perm(), info.Mode().Perm())
	}
	if !info.ModTime().Equal(exp.modTime) {
		return fmt.Errorf("%s: wrong mod time: expected %s, got %s",
			exp.path, exp.modTime, info.ModTime())
	}
	return nil
}

func shouldNotExist(dir string, f file) error {
	_, err := os.Stat(filepath.Join(dir, f.path))
	if err == nil {
		return fmt.Errorf("%s: should not exist", f.path)
	}
	if !os.IsNotExist(err) {
		return errors.WithContext(err, "stat")
	}
	return nil
}
