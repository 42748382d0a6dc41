package version

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/syncthing"
	"github.com/sidkik/turbosync/pkg/syncthing/mocks"
	"github.com/sidkik/turbosync/pkg/version"
)

func TestVersion(t *testing.T) {
	version.Version = "1.0.0"
	parseConfig = func() (config.App, error) {
		return config.App{}, nil
	}

	tests := []struct {
		name      string
		doc       syncthing.Document
		getErr    error
		expOutput string
		expErr    bool
	}{
		{
			name: "Compatible",
			doc:  syncthing.Document{"version": "v1.27.2"},
			expOutput: "local version:  1.0.0\n" +
				"daemon version: v1.27.2\n",
		},
		{
			name: "TooOld",
			doc:  syncthing.Document{"version": "v1.3.0"},
			expOutput: "local version:  1.0.0\n" +
				"daemon version: v1.3.0\n",
			expErr: true,
		},
		{
			name:   "Unreachable",
			getErr: errors.New("connection refused"),
			expOutput: "local version:  1.0.0\n" +
				"daemon version: unavailable (is the sync daemon running?)\n",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var out bytes.Buffer
			stdout = &out

			client := &mocks.Client{}
			client.On("GetSystemVersion").Return(test.doc, test.getErr)
			newClient = func(context.Context, config.App) (syncthing.Client, error) {
				return client, nil
			}

			err := run(context.Background())
			assert.Equal(t, test.expOutput, out.String())
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
