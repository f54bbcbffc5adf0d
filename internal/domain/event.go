package domain

import "fmt"

// Stream tags which pipe of the external process a line arrived on.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

type EventType string

const (
	EventStdout      EventType = "stdout"
	EventStderr      EventType = "stderr"
	EventProgress    EventType = "progress"
	EventWaiting     EventType = "waiting"
	EventTitleUpdate EventType = "title-update"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"

	// EventEndMarker is produced for the __COMPLETE__ sentinel. The
	// launcher folds it into the exit status; it is never published.
	EventEndMarker EventType = "end-marker"
)

// Event is one entry in a run's history. Exactly one terminal event
// (complete or error) ends every run, and it is always last.
type Event struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Percent   int       `json:"percent,omitempty"`
	Seconds   int       `json:"seconds,omitempty"`
	Album     string    `json:"album,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Title     string    `json:"title,omitempty"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// Terminal reports whether the event ends a run's history.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func OutputEvent(stream Stream, message string) Event {
	t := EventStdout
	if stream == StreamStderr {
		t = EventStderr
	}
	return Event{Type: t, Message: message}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// CompleteEvent builds the terminal event for a finished process.
func CompleteEvent(exitCode int, message string) Event {
	code := exitCode
	return Event{Type: EventComplete, ExitCode: &code, Message: message}
}

// CancelledEvent builds the terminal event for an explicitly stopped
// run. It is published without waiting for the process to die.
func CancelledEvent() Event {
	code := CancelledExitCode
	return Event{Type: EventComplete, ExitCode: &code, Cancelled: true, Message: "cancelled"}
}

// CompletionMessage derives the human string shown in the terminal
// frame and in notifications.
func CompletionMessage(exitCode int, elapsed string) string {
	if exitCode == 0 {
		return fmt.Sprintf("done in %s", elapsed)
	}
	return fmt.Sprintf("failed with code %d", exitCode)
}
