package credential

import (
	"context"
	"os"
	"testing"

	"github.com/jonboulle/clockwork"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/retry"
)

const credentialPath = "/daemon/config.xml"

const validConfig = `<configuration version="37">
    <gui enabled="true" tls="false">
        <address>127.0.0.1:8385</address>
        <apikey>abc123</apikey>
    </gui>
</configuration>`

// countingFs counts reads of the credential file and lets tests change the
// filesystem before a given read.
type countingFs struct {
	afero.Fs
	opens    int
	beforeFn func(opens int, fs afero.Fs)
	openErr  error
}

func (fs *countingFs) Open(name string) (afero.File, error) {
	fs.opens++
	if fs.beforeFn != nil {
		fs.beforeFn(fs.opens, fs.Fs)
	}
	if fs.openErr != nil {
		return nil, fs.openErr
	}
	return fs.Fs.Open(name)
}

func newTestResolver(fs afero.Fs, attempts int) Resolver {
	logger, _ := logrusTest.NewNullLogger()
	return Resolver{
		Fs:     fs,
		Clock:  clockwork.NewRealClock(),
		Policy: retry.Fixed(attempts, 0),
		Log:    logger,
	}
}

func TestResolve(t *testing.T) {
	writeAt := func(opens int, contents string) func(int, afero.Fs) {
		return func(n int, fs afero.Fs) {
			if n == opens {
				assert.NoError(t, afero.WriteFile(fs, credentialPath, []byte(contents), 0644))
			}
		}
	}

	tests := []struct {
		name     string
		cfg      config.App
		initial  string
		beforeFn func(int, afero.Fs)
		openErr  error
		expKey   string
		expError error
		expOpens int
	}{
		{
			name:     "ConfiguredKey",
			cfg:      config.App{APIKey: "configured", CredentialFile: credentialPath},
			expKey:   "configured",
			expOpens: 0,
		},
		{
			name:     "FileReady",
			cfg:      config.App{CredentialFile: credentialPath},
			initial:  validConfig,
			expKey:   "abc123",
			expOpens: 1,
		},
		{
			name:     "FileAppearsLater",
			cfg:      config.App{CredentialFile: credentialPath},
			beforeFn: writeAt(3, validConfig),
			expKey:   "abc123",
			expOpens: 3,
		},
		{
			name:     "PartialWriteIsRetried",
			cfg:      config.App{CredentialFile: credentialPath},
			initial:  `<configuration><gui><apikey>abc`,
			beforeFn: writeAt(2, validConfig),
			expKey:   "abc123",
			expOpens: 2,
		},
		{
			name:     "EmptyKeyIsRetried",
			cfg:      config.App{CredentialFile: credentialPath},
			initial:  `<configuration><gui><apikey> </apikey></gui></configuration>`,
			beforeFn: writeAt(4, validConfig),
			expKey:   "abc123",
			expOpens: 4,
		},
		{
			name:     "Exhausted",
			cfg:      config.App{CredentialFile: credentialPath},
			expError: errors.CredentialError{Reason: "not found after 5 attempts"},
			expOpens: 5,
		},
		{
			name:     "PermissionDenied",
			cfg:      config.App{CredentialFile: credentialPath},
			openErr:  &os.PathError{Op: "open", Path: credentialPath, Err: os.ErrPermission},
			expError: errors.CredentialError{Reason: "read credential file: open /daemon/config.xml: permission denied"},
			expOpens: 1,
		},
		{
			name:     "NoCredentialFile",
			cfg:      config.App{},
			expError: errors.CredentialError{Reason: "no API key configured and no credential file set"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs := &countingFs{Fs: afero.NewMemMapFs(), beforeFn: test.beforeFn, openErr: test.openErr}
			if test.initial != "" {
				assert.NoError(t, afero.WriteFile(fs.Fs, credentialPath, []byte(test.initial), 0644))
			}

			key, err := newTestResolver(fs, 5).Resolve(context.Background(), test.cfg)
			assert.Equal(t, test.expKey, key)
			assert.Equal(t, test.expError, err)
			assert.Equal(t, test.expOpens, fs.opens)
		})
	}
}

func TestResolveDefaultPolicyAttempts(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	r := newTestResolver(fs, DefaultAttempts)

	_, err := r.Resolve(context.Background(), config.App{CredentialFile: credentialPath})
	assert.Equal(t, errors.CredentialError{Reason: "not found after 15 attempts"}, err)
	assert.Equal(t, DefaultAttempts, fs.opens)
}
