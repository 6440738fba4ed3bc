package marker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	source     = "/persistent/hf"
	markerPath = "/scratch/.cache/scratchsync/.HF_HOME.synced"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func pathFor(name string) string {
	return "/scratch/.cache/scratchsync/." + name + ".synced"
}

// setupSource creates the source directory with a single child, with the
// given modification times.
func setupSource(t *testing.T, fs afero.Fs, dirMtime, childMtime time.Time) {
	require.NoError(t, fs.MkdirAll(source, 0755))
	require.NoError(t, afero.WriteFile(fs, source+"/model.bin", []byte("weights"), 0644))
	require.NoError(t, fs.Chtimes(source+"/model.bin", childMtime, childMtime))
	require.NoError(t, fs.Chtimes(source, dirMtime, dirMtime))
}

func TestFingerprint(t *testing.T) {
	fs := afero.NewMemMapFs()
	setupSource(t, fs, t0, t0.Add(time.Minute))

	fingerprint, err := Fingerprint(fs, source)
	require.NoError(t, err)
	assert.True(t, fingerprint.Equal(t0.Add(time.Minute)))

	require.NoError(t, fs.Chtimes(source, t0.Add(time.Hour), t0.Add(time.Hour)))
	fingerprint, err = Fingerprint(fs, source)
	require.NoError(t, err)
	assert.True(t, fingerprint.Equal(t0.Add(time.Hour)))

	_, err = Fingerprint(fs, "/does/not/exist")
	assert.Error(t, err)
}

func TestFingerprintIsShallow(t *testing.T) {
	fs := afero.NewMemMapFs()
	setupSource(t, fs, t0, t0)
	require.NoError(t, fs.MkdirAll(source+"/sub", 0755))
	require.NoError(t, afero.WriteFile(fs, source+"/sub/deep.bin", nil, 0644))
	require.NoError(t, fs.Chtimes(source+"/sub/deep.bin", t0.Add(time.Hour), t0.Add(time.Hour)))
	require.NoError(t, fs.Chtimes(source+"/sub", t0, t0))
	require.NoError(t, fs.Chtimes(source, t0, t0))

	fingerprint, err := Fingerprint(fs, source)
	require.NoError(t, err)
	assert.True(t, fingerprint.Equal(t0))
}

func TestShouldSkip(t *testing.T) {
	window := time.Hour

	tests := []struct {
		name string

		// setup runs after the source exists and before ShouldSkip is called.
		setup   func(t *testing.T, fs afero.Fs, store *Store, clock clockwork.FakeClock)
		expSkip bool
	}{
		{
			name:    "NoMarker",
			setup:   func(*testing.T, afero.Fs, *Store, clockwork.FakeClock) {},
			expSkip: false,
		},
		{
			name: "FreshAndUnchanged",
			setup: func(t *testing.T, _ afero.Fs, store *Store, clock clockwork.FakeClock) {
				require.NoError(t, store.Write("HF_HOME", source))
				clock.Advance(30 * time.Minute)
			},
			expSkip: true,
		},
		{
			name: "ExactlyAtWindow",
			setup: func(t *testing.T, _ afero.Fs, store *Store, clock clockwork.FakeClock) {
				require.NoError(t, store.Write("HF_HOME", source))
				clock.Advance(window)
			},
			expSkip: true,
		},
		{
			name: "Expired",
			setup: func(t *testing.T, _ afero.Fs, store *Store, clock clockwork.FakeClock) {
				require.NoError(t, store.Write("HF_HOME", source))
				clock.Advance(window + time.Second)
			},
			expSkip: false,
		},
		{
			name: "SourceChangedWithinWindow",
			setup: func(t *testing.T, fs afero.Fs, store *Store, clock clockwork.FakeClock) {
				require.NoError(t, store.Write("HF_HOME", source))
				clock.Advance(time.Minute)
				require.NoError(t, afero.WriteFile(fs, source+"/new.bin", nil, 0644))
				require.NoError(t, fs.Chtimes(source+"/new.bin", t0.Add(time.Minute), t0.Add(time.Minute)))
			},
			expSkip: false,
		},
		{
			name: "CorruptMarker",
			setup: func(t *testing.T, fs afero.Fs, _ *Store, _ clockwork.FakeClock) {
				require.NoError(t, afero.WriteFile(fs, markerPath, []byte("{not json"), 0644))
			},
			expSkip: false,
		},
		{
			name: "SourceRemoved",
			setup: func(t *testing.T, fs afero.Fs, store *Store, _ clockwork.FakeClock) {
				require.NoError(t, store.Write("HF_HOME", source))
				require.NoError(t, fs.RemoveAll(source))
			},
			expSkip: false,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			clock := clockwork.NewFakeClockAt(t0)
			store := New(fs, clock, pathFor)
			setupSource(t, fs, t0.Add(-time.Hour), t0.Add(-time.Hour))

			test.setup(t, fs, store, clock)
			assert.Equal(t, test.expSkip, store.ShouldSkip("HF_HOME", source, window))
		})
	}
}

func TestWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(t0)
	store := New(fs, clock, pathFor)
	setupSource(t, fs, t0.Add(-time.Hour), t0.Add(-2*time.Hour))

	require.NoError(t, store.Write("HF_HOME", source))

	b, err := afero.ReadFile(fs, markerPath)
	require.NoError(t, err)

	var m Marker
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, Marker{
		SyncedAt:    float64(t0.Unix()),
		SourceMtime: float64(t0.Add(-time.Hour).Unix()),
		VarName:     "HF_HOME",
		Source:      source,
	}, m)
	assert.True(t, m.SyncedTime().Equal(t0))

	// No temporary files are left behind.
	entries, err := afero.ReadDir(fs, "/scratch/.cache/scratchsync")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	read, err := store.Read("HF_HOME")
	require.NoError(t, err)
	assert.Equal(t, m, read)
}

func TestWriteMissingSourceRecordsZero(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, clockwork.NewFakeClockAt(t0), pathFor)

	require.NoError(t, store.Write("HF_HOME", "/does/not/exist"))

	m, err := store.Read("HF_HOME")
	require.NoError(t, err)
	assert.Zero(t, m.SourceMtime)
	assert.Equal(t, float64(t0.Unix()), m.SyncedAt)
}
