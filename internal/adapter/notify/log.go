package notify

import (
	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
	"github.com/theodorecharles/darkroom/internal/port"
)

// LogNotifier records completion notifications in the application log.
// It stands in for the gallery's push-notification pipeline, which is
// a separate delivery concern.
type LogNotifier struct{}

func NewLogNotifier() port.Notifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(userID string, note domain.Notification) {
	logger.Info.Printf("notify %s [%s]: %s: %s", userID, note.Tag,
		logger.SanitizeForLog(note.Title), logger.SanitizeForLog(note.Body))
}
