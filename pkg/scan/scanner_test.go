package scan

import (
	"context"
	"path/filepath"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
	"github.com/sidkik/turbosync/pkg/scan/mocks"
)

func newTestScanner(fs afero.Fs, lister RemoteLister) Scanner {
	logger, _ := logrusTest.NewNullLogger()
	return Scanner{
		Fs:  fs,
		Log: logger,
		NewLister: func(config.App) RemoteLister {
			return lister
		},
	}
}

func TestFindMounted(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, file := range []string{
		"/Volumes/data/.livework",
		"/Volumes/data/proj1/.livework",
		"/Volumes/data/proj1/src/main.go",
		"/Volumes/data/proj2/livework",
		"/Volumes/data/proj3/nested/.livework",
		"/Volumes/data/proj3/nested/livework",
		"/Volumes/data/proj4/readme.md",
	} {
		require.NoError(t, fs.MkdirAll(filepath.Dir(file), 0755))
		require.NoError(t, afero.WriteFile(fs, file, nil, 0644))
	}
	// A directory named like the marker doesn't count.
	require.NoError(t, fs.MkdirAll("/Volumes/data/proj5/.livework", 0755))

	cfg := config.App{
		Mode:       config.ModeMounted,
		MountPath:  "/Volumes/data",
		MarkerFile: ".livework",
	}
	dirs, err := newTestScanner(fs, nil).Find(context.Background(), cfg)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/Volumes/data",
		"/Volumes/data/proj1",
		"/Volumes/data/proj2",
		"/Volumes/data/proj3/nested",
	}, dirs)
}

func TestFindMountedEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/Volumes/data/proj", 0755))

	cfg := config.App{Mode: config.ModeMounted, MountPath: "/Volumes/data", MarkerFile: ".livework"}
	dirs, err := newTestScanner(fs, nil).Find(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestFindMountedMissingRoot(t *testing.T) {
	cfg := config.App{Mode: config.ModeMounted, MountPath: "/Volumes/gone", MarkerFile: ".livework"}
	_, err := newTestScanner(afero.NewMemMapFs(), nil).Find(context.Background(), cfg)
	_, ok := err.(errors.ScanError)
	assert.True(t, ok, "expected a ScanError, got %v", err)
}

func TestFindSSH(t *testing.T) {
	cfg := config.App{
		Mode:       config.ModeSSH,
		Remote:     config.Remote{User: "me", Host: "nas", Port: 22, Path: "/volume1/work"},
		MarkerFile: ".livework",
	}

	tests := []struct {
		name      string
		listDirs  []string
		listError error
		expDirs   []string
		expError  error
	}{
		{
			name:     "Success",
			listDirs: []string{"/volume1/work/a", "/volume1/work/b"},
			expDirs:  []string{"/volume1/work/a", "/volume1/work/b"},
		},
		{
			name:      "ScanErrorPassesThrough",
			listError: errors.ScanError{Reason: "Process exited with status 1", Stderr: "find: denied"},
			expError:  errors.ScanError{Reason: "Process exited with status 1", Stderr: "find: denied"},
		},
		{
			name:      "OtherErrorsBecomeScanErrors",
			listError: errors.New("dial: connection refused"),
			expError:  errors.ScanError{Reason: "dial: connection refused"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			lister := &mocks.RemoteLister{}
			lister.On("ListMarkerDirs", mock.Anything, "/volume1/work", ".livework").
				Return(test.listDirs, test.listError)

			dirs, err := newTestScanner(afero.NewMemMapFs(), lister).Find(context.Background(), cfg)
			assert.Equal(t, test.expDirs, dirs)
			assert.Equal(t, test.expError, err)
			lister.AssertExpectations(t)
		})
	}
}

func TestParseFindOutput(t *testing.T) {
	output := "./proj1/.livework\n" +
		"/volume1/work/proj2/.livework\n" +
		"\n" +
		"proj3/deep/.livework\n" +
		"/volume1/work/.livework\n" +
		"./proj1/.livework\n"

	assert.Equal(t, []string{
		"/volume1/work/proj1",
		"/volume1/work/proj2",
		"/volume1/work/proj3/deep",
		"/volume1/work",
	}, parseFindOutput("/volume1/work", output))
}

func TestFindCommand(t *testing.T) {
	assert.Equal(t, `find '/volume1/My Work' -name '.livework' -type f`,
		findCommand("/volume1/My Work", ".livework"))
	assert.Equal(t, `find '/it'\''s' -name '.livework' -type f`,
		findCommand("/it's", ".livework"))
}
