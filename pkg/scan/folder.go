package scan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/config"
	"github.com/sidkik/turbosync/pkg/errors"
)

// baseFolderSuffix is appended to the base directory's name when the base
// directory itself contains a marker.
const baseFolderSuffix = "_livework_base"

// Folder is a marker-bearing directory found during a scan, mapped onto the
// local machine.
type Folder struct {
	// RemotePath is the absolute path of the directory on the scanned tree.
	RemotePath string

	// RelativePath is RemotePath relative to the scan base, or "." for the
	// base itself.
	RelativePath string

	// LocalPath is RelativePath joined onto the local base directory.
	LocalPath string

	// ID is the daemon folder ID. It only depends on RelativePath and the
	// base directory's name.
	ID string
}

// FolderID derives the daemon folder ID for a path relative to the scan
// base. Path separators become underscores, ASCII letters and digits are kept,
// and every other byte, including literal underscores and dashes, is escaped
// as a dash followed by two hex digits. The mapping is injective, so `a.b`,
// `a/b` and `a_b` get distinct IDs. The base directory itself ("." or "")
// maps to "<baseName>_livework_base", which is also the ID of the relative
// path "<baseName>/livework/base".
func FolderID(relPath, baseName string) string {
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if relPath == "." || relPath == "" {
		return sanitizeID(baseName) + baseFolderSuffix
	}
	return sanitizeID(relPath)
}

func sanitizeID(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '/':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "-%02x", c)
		}
	}
	return b.String()
}

// Translate maps discovered directories to Folders. Paths that aren't under
// the scan base fall back to their basename, which usually points at a
// symlink or a misconfigured base path.
func Translate(log logrus.FieldLogger, cfg config.App, paths []string) []Folder {
	base := filepath.Clean(cfg.BaseDir())
	baseName := filepath.Base(base)

	var folders []Folder
	for _, path := range paths {
		path = filepath.Clean(path)
		relPath, err := filepath.Rel(base, path)
		if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			log.WithFields(logrus.Fields{
				"path": path,
				"base": base,
			}).Warn("Discovered directory is outside the scan base. Using its name as the relative path")
			relPath = filepath.Base(path)
		}

		folders = append(folders, Folder{
			RemotePath:   path,
			RelativePath: relPath,
			LocalPath:    filepath.Join(cfg.LocalDir, relPath),
			ID:           FolderID(relPath, baseName),
		})
	}
	return folders
}

// EnsureLocalDirs creates the local directory of every folder so that the
// daemon has a valid target to manage.
func (s Scanner) EnsureLocalDirs(folders []Folder) error {
	for _, folder := range folders {
		if err := s.Fs.MkdirAll(folder.LocalPath, 0755); err != nil {
			return errors.WithContext(err, "create "+folder.LocalPath)
		}
	}
	return nil
}
