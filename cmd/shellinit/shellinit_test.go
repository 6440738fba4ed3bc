package shellinit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/scratchsync/pkg/shell"
)

func TestDetectShell(t *testing.T) {
	oldGetenv := getenv
	defer func() { getenv = oldGetenv }()

	env := map[string]string{}
	getenv = func(key string) string { return env[key] }

	assert.Equal(t, shell.Bash, detectShell(""))
	assert.Equal(t, shell.Zsh, detectShell(shell.Zsh))

	env["SHELL"] = "/usr/bin/fish"
	assert.Equal(t, shell.Fish, detectShell(""))
}

func TestCommand(t *testing.T) {
	oldStdout := stdout
	defer func() { stdout = oldStdout }()

	out := &bytes.Buffer{}
	stdout = out

	cmd := New()
	cmd.SetArgs([]string{"--shell", "fish"})
	assert.NoError(t, cmd.Execute())
	assert.Equal(t, shell.Init(shell.Fish), out.String())
}
