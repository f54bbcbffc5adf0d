package port

import "github.com/theodorecharles/darkroom/internal/domain"

// Notifier is the push-notification collaborator invoked when a run
// ends. Delivery is fire-and-forget; the orchestrator never depends on
// the outcome.
type Notifier interface {
	Notify(userID string, n domain.Notification)
}
