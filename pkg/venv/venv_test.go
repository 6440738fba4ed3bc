package venv

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) {
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0755))
	}
}

func TestDetectPythonVersion(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/venvs/uv/pyvenv.cfg": "home = /usr/bin\n" +
			"implementation = CPython\n" +
			"version_info = 3.11.5\n" +
			"version = 3.11\n",
		"/venvs/std/pyvenv.cfg":     "# comment\nhome=/usr/bin\nversion = 3.10.12\n",
		"/venvs/unknown/pyvenv.cfg": "home = /usr/bin\n",
	})

	version, err := DetectPythonVersion("/venvs/uv")
	assert.NoError(t, err)
	assert.Equal(t, "3.11.5", version)

	version, err = DetectPythonVersion("/venvs/std")
	assert.NoError(t, err)
	assert.Equal(t, "3.10.12", version)

	_, err = DetectPythonVersion("/venvs/unknown")
	assert.EqualError(t, err, "could not detect Python version from "+
		"/venvs/unknown/pyvenv.cfg. Available keys: [home]")

	_, err = DetectPythonVersion("/venvs/none")
	assert.Error(t, err)
}

func TestMajorMinor(t *testing.T) {
	assert.Equal(t, "3.11", MajorMinor("3.11.5"))
	assert.Equal(t, "3.12", MajorMinor("3.12.0rc1"))
	assert.Equal(t, "3.9", MajorMinor("3.9"))
}

func TestList(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/venvs/b/pyvenv.cfg":         "version = 3.10.1\n",
		"/venvs/a/pyvenv.cfg":         "version_info = 3.11.5\n",
		"/venvs/notavenv/README":      "",
		"/venvs/noversion/pyvenv.cfg": "home = /usr\n",
		"/venvs/file":                 "",
	})

	venvs, err := List("/venvs")
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Name: "a", Path: "/venvs/a", PythonVersion: "3.11.5", MajorMinor: "3.11"},
		{Name: "b", Path: "/venvs/b", PythonVersion: "3.10.1", MajorMinor: "3.10"},
	}, venvs)

	venvs, err = List("/missing")
	assert.NoError(t, err)
	assert.Empty(t, venvs)
}

func TestValidate(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/venvs/good/pyvenv.cfg":  "",
		"/venvs/good/bin/python":  "",
		"/venvs/nobin/pyvenv.cfg": "",
		"/venvs/nocfg/bin/python": "",
	})

	assert.NoError(t, Validate("/venvs/good"))
	assert.EqualError(t, Validate("/venvs/nobin"), "not a Python venv (no bin/ directory): /venvs/nobin")
	assert.EqualError(t, Validate("/venvs/nocfg"), "not a Python venv (no pyvenv.cfg): /venvs/nocfg")
	assert.EqualError(t, Validate("/venvs/missing"), "not a directory: /venvs/missing")
}

func TestFixup(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/new/env/pyvenv.cfg": "version = 3.11.5\n",
		"/new/env/bin/activate": "# activate\n" +
			"VIRTUAL_ENV=\"/old/env\"\n" +
			"export VIRTUAL_ENV\n" +
			"PATH=\"/old/env/bin:$PATH\"\n",
		"/new/env/bin/pip":    "#!/old/env/bin/python\nimport pip\n",
		"/new/env/bin/binary": "\x7fELF/old/env",
		"/new/env/bin/other":  "#!/usr/bin/env python\n/old/env\n",
	})

	fixed, err := Fixup("/new/env", true)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	pip, err := afero.ReadFile(fs, "/new/env/bin/pip")
	require.NoError(t, err)
	assert.Equal(t, "#!/old/env/bin/python\nimport pip\n", string(pip))

	fixed, err = Fixup("/new/env", false)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)

	activate, err := afero.ReadFile(fs, "/new/env/bin/activate")
	require.NoError(t, err)
	assert.Equal(t, "# activate\n"+
		"VIRTUAL_ENV=\"/new/env\"\n"+
		"export VIRTUAL_ENV\n"+
		"PATH=\"/new/env/bin:$PATH\"\n", string(activate))

	pip, err = afero.ReadFile(fs, "/new/env/bin/pip")
	require.NoError(t, err)
	assert.Equal(t, "#!/new/env/bin/python\nimport pip\n", string(pip))

	other, err := afero.ReadFile(fs, "/new/env/bin/other")
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env python\n/old/env\n", string(other))

	// Running again is a no-op.
	fixed, err = Fixup("/new/env", false)
	require.NoError(t, err)
	assert.Zero(t, fixed)
}

func TestFixupMoved(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/new/a/pyvenv.cfg":   "version = 3.11.5\n",
		"/new/a/bin/activate": "VIRTUAL_ENV='/old/a'\n",
		"/new/a/bin/python3":  "#!/old/a/bin/python\n",
		"/new/b/pyvenv.cfg":   "version = 3.11.5\n",
		"/new/b/bin/activate": "VIRTUAL_ENV='/elsewhere/b'\n",
	})

	fixed, err := FixupMoved("/new", "/old/")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2}, fixed)
}
