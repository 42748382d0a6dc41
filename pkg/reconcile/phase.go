package reconcile

// Phase is a step of a reconciliation cycle. Every cycle starts at Idle and
// ends at Done or Failed.
type Phase int

const (
	Idle Phase = iota
	LoadingConfig
	ResolvingCredential
	FetchingRemoteConfig
	Scanning
	Diffing
	Applying
	Done
	Failed
)

var phaseNames = map[Phase]string{
	Idle:                 "idle",
	LoadingConfig:        "loading-config",
	ResolvingCredential:  "resolving-credential",
	FetchingRemoteConfig: "fetching-remote-config",
	Scanning:             "scanning",
	Diffing:              "diffing",
	Applying:             "applying",
	Done:                 "done",
	Failed:               "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}
