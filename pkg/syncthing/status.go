package syncthing

import (
	"fmt"
	"strings"
)

const (
	// StateIdle is reported by the daemon for folders that are fully
	// scanned and not transferring.
	StateIdle = "idle"

	// StateError is the normalized state of a folder that has pull errors.
	StateError = "error"

	stateUnknown = "unknown"

	maxReportedErrors = 3
)

// FolderStatus is the normalized form of a folder status document.
type FolderStatus struct {
	State string

	// Completion is the percentage of the global data that's present
	// locally, between 0 and 100.
	Completion float64

	Error string
}

// ParseFolderStatus normalizes a raw `/db/status` document.
func ParseFolderStatus(doc Document) FolderStatus {
	status := FolderStatus{
		State: doc.String("state"),
		Error: doc.String("error"),
	}
	if status.State == "" {
		status.State = stateUnknown
	}

	global, _ := doc.Int64("globalBytes")
	local, _ := doc.Int64("localBytes")
	if global > 0 {
		status.Completion = clamp(float64(local)/float64(global)*100, 0, 100)
	}

	count, messages := pullErrors(doc["pullErrors"])
	if count > 0 && status.State == StateIdle {
		status.State = StateError
		if len(messages) > 0 {
			if len(messages) > maxReportedErrors {
				messages = messages[:maxReportedErrors]
			}
			status.Error = strings.Join(messages, "; ")
		} else {
			status.Error = fmt.Sprintf("%d pull errors", count)
		}
	}
	return status
}

// pullErrors reads the `pullErrors` field, which is either a count or a list
// of {path, error} objects.
func pullErrors(v interface{}) (int, []string) {
	list, ok := v.([]interface{})
	if !ok {
		n, _ := toInt64(v)
		return int(n), nil
	}

	var messages []string
	for _, item := range list {
		switch e := item.(type) {
		case string:
			messages = append(messages, e)
		case map[string]interface{}:
			msg, _ := e["error"].(string)
			if path, _ := e["path"].(string); path != "" {
				msg = path + ": " + msg
			}
			messages = append(messages, msg)
		}
	}
	return len(list), messages
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
