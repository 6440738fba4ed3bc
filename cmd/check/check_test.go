package check

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/scratchsync/pkg/config"
)

func TestRun(t *testing.T) {
	oldStdout, oldLoad, oldLookup := stdout, loadConfig, lookupEnv
	defer func() {
		stdout, loadConfig, lookupEnv = oldStdout, oldLoad, oldLookup
	}()

	loadConfig = func() (config.Config, error) {
		return config.Config{
			ScratchBase: "/scratch",
			Vars: map[string]config.Var{
				"HF_HOME": {Source: "/data/hf", Enabled: true},
			},
		}, nil
	}

	tests := []struct {
		name      string
		env       map[string]string
		expOutput string
		expError  bool
	}{
		{
			name:      "Unset",
			env:       map[string]string{},
			expOutput: "All managed variables agree with the config.\n",
		},
		{
			name:      "Mismatch",
			env:       map[string]string{"HF_HOME": "/old/hf"},
			expOutput: "$HF_HOME points to /old/hf",
			expError:  true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			stdout = out
			lookupEnv = func(key string) (string, bool) {
				val, ok := test.env[key]
				return val, ok
			}

			err := run()
			if test.expError {
				assert.EqualError(t, err, "1 mismatch(es) found.")
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out.String(), test.expOutput)
		})
	}
}
