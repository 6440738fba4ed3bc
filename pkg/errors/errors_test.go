package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	root := New("root")
	err := WithContext(WithContext(root, "inner"), "outer")

	assert.EqualError(t, err, "outer: inner: root")
	assert.Equal(t, root, RootCause(err))
	assert.True(t, Is(err, root))
}

func TestGetPrintableMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  string
	}{
		{
			name: "Plain",
			err:  WithContext(New("boom"), "do thing"),
			exp:  "do thing: boom",
		},
		{
			name: "Friendly",
			err:  WithContext(NewFriendlyError("please %s", "fix it"), "do thing"),
			exp:  "please fix it",
		},
		{
			name: "FriendlyInsideConfigError",
			err:  ConfigError{WithContext(NewFriendlyError("bad config"), "load")},
			exp:  "bad config",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.exp, GetPrintableMessage(test.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(New("boom")))
	assert.Equal(t, 2, ExitCode(ConfigError{New("bad")}))
	assert.Equal(t, 2, ExitCode(WithContext(ConfigError{New("bad")}, "load")))
}
