package domain

import "fmt"

// JobKind identifies one category of long-running background job. Each
// kind owns at most one live run at a time.
type JobKind string

const (
	KindAITitles       JobKind = "ai-titles"
	KindVideoOptimize  JobKind = "video-optimize"
	KindVideoReprocess JobKind = "video-reprocess"
)

// Kinds is the closed set of job kinds the orchestrator knows about.
var Kinds = []JobKind{KindAITitles, KindVideoOptimize, KindVideoReprocess}

// ParseJobKind validates a raw path segment against the known kinds.
func ParseJobKind(s string) (JobKind, error) {
	for _, k := range Kinds {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Display returns a human-readable name for notification titles.
func (k JobKind) Display() string {
	switch k {
	case KindAITitles:
		return "AI title generation"
	case KindVideoOptimize:
		return "Video optimization"
	case KindVideoReprocess:
		return "Video reprocessing"
	default:
		return string(k)
	}
}

type SlotState string

const (
	SlotIdle     SlotState = "idle"
	SlotRunning  SlotState = "running"
	SlotComplete SlotState = "complete"
)

// CommandSpec describes the external program backing one job kind.
type CommandSpec struct {
	Kind JobKind
	Path string
	Args []string
	Env  map[string]string
}

// ExitStatus is reported by the launcher exactly once per started
// process. Graceful is set when the program emitted its completion
// sentinel before exiting.
type ExitStatus struct {
	Code     int
	Graceful bool
}

// CancelledExitCode is the synthetic exit code recorded when a run is
// terminated via an explicit stop request.
const CancelledExitCode = -1

// Notification is handed to the notifier collaborator when a run ends.
type Notification struct {
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
}
