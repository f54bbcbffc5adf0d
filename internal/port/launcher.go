package port

import (
	"context"

	"github.com/theodorecharles/darkroom/internal/domain"
)

// Process is the handle to a started external program. It is owned
// exclusively by the slot that launched it.
type Process interface {
	// Signal requests termination of the process.
	Signal() error
}

// Launcher spawns the external batch program for a job run. Events
// parsed from the program's output are delivered through onEvent in
// emission order; onExit is called exactly once after the process
// terminates. A spawn failure is returned as an error and neither
// callback fires.
type Launcher interface {
	Launch(ctx context.Context, spec domain.CommandSpec, onEvent func(domain.Event), onExit func(domain.ExitStatus)) (Process, error)
}
