package domain

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Line-oriented progress protocol spoken by the batch programs. Plain
// programs that emit none of these markers still work; their output
// surfaces as raw stdout/stderr events.
var (
	waitingRe  = regexp.MustCompile(`^WAITING:(\d+)$`)
	progressRe = regexp.MustCompile(`^\[(\d+)/(\d+)\]\s*\((\d+)%\)`)
	errorRe    = regexp.MustCompile(`^__ERROR__\s*(.*)$`)
)

const (
	completeSentinel  = "__COMPLETE__"
	titleUpdatePrefix = "TITLE_UPDATE:"
)

// ParseLine classifies one complete, non-blank line of program output.
// Patterns are checked in a fixed order and the first match wins; lines
// matching nothing fall back to a raw output event tagged with the
// stream they arrived on.
func ParseLine(kind JobKind, stream Stream, line string) Event {
	if m := waitingRe.FindStringSubmatch(line); m != nil {
		seconds, _ := strconv.Atoi(m[1])
		return Event{Type: EventWaiting, Seconds: seconds}
	}

	if m := progressRe.FindStringSubmatch(line); m != nil {
		current, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		percent, _ := strconv.Atoi(m[3])
		return Event{
			Type:    EventProgress,
			Current: current,
			Total:   total,
			Percent: percent,
			Message: line,
		}
	}

	// Only the AI titles program emits structured title results.
	if kind == KindAITitles && strings.HasPrefix(line, titleUpdatePrefix) {
		var payload struct {
			Album    string `json:"album"`
			Filename string `json:"filename"`
			Title    string `json:"title"`
		}
		raw := strings.TrimPrefix(line, titleUpdatePrefix)
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return Event{
				Type:     EventTitleUpdate,
				Album:    payload.Album,
				Filename: payload.Filename,
				Title:    payload.Title,
			}
		}
		// Malformed payload degrades to plain output.
	}

	if line == completeSentinel {
		return Event{Type: EventEndMarker}
	}

	if m := errorRe.FindStringSubmatch(line); m != nil {
		return ErrorEvent(m[1])
	}

	return OutputEvent(stream, line)
}
