package scan

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/turbosync/pkg/config"
)

func TestFolderID(t *testing.T) {
	tests := []struct {
		relPath, baseName, exp string
	}{
		{"proj1", "data", "proj1"},
		{"projects/alpha", "data", "projects_alpha"},
		{".", "data", "data_livework_base"},
		{"", "data", "data_livework_base"},
		{".", "My Share", "My-20Share_livework_base"},
		{".", "Live_Work", "Live-5fWork_livework_base"},
		{"client.site/v2", "data", "client-2esite_v2"},
		{"photos 2024/raw", "data", "photos-202024_raw"},
		{"v1_2", "data", "v1-5f2"},
		{"a-b", "data", "a-2db"},
		{"café", "data", "caf-c3-a9"},
		{"projects/alpha/", "data", "projects_alpha"},
	}

	for _, test := range tests {
		assert.Equal(t, test.exp, FolderID(test.relPath, test.baseName), test.relPath)
	}
}

func TestFolderIDStable(t *testing.T) {
	first := FolderID("projects/alpha", "data")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FolderID("projects/alpha", "data"))
	}
}

func TestFolderIDDistinct(t *testing.T) {
	paths := []string{"a.b", "a/b", "a_b", "a-b", "a b", "a-2eb", "a_/b", "a/_b", "v1.2", "v1_2"}

	seen := map[string]string{}
	for _, path := range paths {
		id := FolderID(path, "data")
		if other, ok := seen[id]; ok {
			t.Errorf("%q and %q both map to %q", other, path, id)
		}
		seen[id] = path
	}
}

func TestTranslate(t *testing.T) {
	cfg := config.App{
		Mode:      config.ModeMounted,
		MountPath: "/Volumes/data",
		LocalDir:  "/Users/x/Sync",
	}

	logger, hook := logrusTest.NewNullLogger()
	folders := Translate(logger, cfg, []string{
		"/Volumes/data/proj1",
		"/Volumes/data",
		"/Volumes/other/stray",
	})

	assert.Equal(t, []Folder{
		{
			RemotePath:   "/Volumes/data/proj1",
			RelativePath: "proj1",
			LocalPath:    "/Users/x/Sync/proj1",
			ID:           "proj1",
		},
		{
			RemotePath:   "/Volumes/data",
			RelativePath: ".",
			LocalPath:    "/Users/x/Sync",
			ID:           "data_livework_base",
		},
		{
			RemotePath:   "/Volumes/other/stray",
			RelativePath: "stray",
			LocalPath:    "/Users/x/Sync/stray",
			ID:           "stray",
		},
	}, folders)

	if assert.Len(t, hook.AllEntries(), 1) {
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
		assert.Equal(t, "/Volumes/other/stray", hook.LastEntry().Data["path"])
	}
}

func TestTranslateSSHUsesRemotePath(t *testing.T) {
	cfg := config.App{
		Mode:     config.ModeSSH,
		Remote:   config.Remote{Path: "/volume1/work"},
		LocalDir: "/sync",
	}
	logger, _ := logrusTest.NewNullLogger()
	folders := Translate(logger, cfg, []string{"/volume1/work/a/b"})
	assert.Equal(t, []Folder{{
		RemotePath:   "/volume1/work/a/b",
		RelativePath: "a/b",
		LocalPath:    "/sync/a/b",
		ID:           "a_b",
	}}, folders)
}

func TestEnsureLocalDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newTestScanner(fs, nil)
	assert.NoError(t, s.EnsureLocalDirs([]Folder{
		{LocalPath: "/Users/x/Sync"},
		{LocalPath: "/Users/x/Sync/proj1/deep"},
	}))

	for _, dir := range []string{"/Users/x/Sync", "/Users/x/Sync/proj1/deep"} {
		exists, err := afero.DirExists(fs, dir)
		assert.NoError(t, err)
		assert.True(t, exists, dir)
	}
}
