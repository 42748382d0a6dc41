package config

import (
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DetectMountPath guesses where the remote tree is mounted locally. NAS
// shares are usually exported as /volume1/<share> and mounted on macOS as
// /Volumes/<share>, so both the raw remote path and that rewrite are tried.
// The first candidate that exists as a directory wins.
func DetectMountPath(remotePath string) (string, bool) {
	if remotePath == "" {
		return "", false
	}

	// Remote paths are often written with shell escapes, e.g. `My\ Share`.
	raw := strings.ReplaceAll(remotePath, `\`, "")
	raw = path.Clean("/" + strings.TrimPrefix(raw, "/"))

	candidates := []string{raw}
	if rewritten := strings.Replace(raw, "/volume1", "/Volumes", 1); rewritten != raw {
		candidates = append(candidates, rewritten)
	}

	for _, candidate := range candidates {
		fi, err := fs.Stat(candidate)
		if err == nil && fi.IsDir() {
			log.WithField("path", candidate).Info("Auto-detected mounted volume")
			return candidate, true
		}
	}

	log.WithField("candidates", candidates).Debug("Could not auto-detect mounted volume")
	return "", false
}
