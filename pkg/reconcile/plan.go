package reconcile

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sidkik/turbosync/pkg/scan"
)

// Plan is the set of changes needed to bring the daemon's folders in line
// with the discovered ones. It's recomputed from scratch every cycle.
type Plan struct {
	ToAdd    []string
	ToRemove []string
	ToKeep   []string

	// HasDevice is whether the remote device is already configured.
	HasDevice bool
}

// NewPlan diffs the folder IDs currently configured in the daemon against
// the desired ones. The resulting ID lists are sorted.
func NewPlan(current []string, desired map[string]scan.Folder, hasDevice bool) Plan {
	plan := Plan{HasDevice: hasDevice}
	currentSet := map[string]struct{}{}
	for _, id := range current {
		if _, dup := currentSet[id]; dup {
			continue
		}
		currentSet[id] = struct{}{}

		if _, ok := desired[id]; ok {
			plan.ToKeep = append(plan.ToKeep, id)
		} else {
			plan.ToRemove = append(plan.ToRemove, id)
		}
	}

	for id := range desired {
		if _, ok := currentSet[id]; !ok {
			plan.ToAdd = append(plan.ToAdd, id)
		}
	}

	sort.Strings(plan.ToAdd)
	sort.Strings(plan.ToRemove)
	sort.Strings(plan.ToKeep)
	return plan
}

// desiredFolders indexes folders by ID. Two paths mapping to the same ID is
// a scan anomaly; the later one wins.
func desiredFolders(log logrus.FieldLogger, folders []scan.Folder) map[string]scan.Folder {
	desired := map[string]scan.Folder{}
	for _, folder := range folders {
		if prev, ok := desired[folder.ID]; ok {
			log.WithFields(logrus.Fields{
				"folder":   folder.ID,
				"previous": prev.RemotePath,
				"current":  folder.RemotePath,
			}).Warn("Two discovered directories map to the same folder ID. Using the latter")
		}
		desired[folder.ID] = folder
	}
	return desired
}
