package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
	"github.com/theodorecharles/darkroom/internal/port"
)

// Slot is the state machine for one job kind: Idle until a process is
// spawned, Running while it lives, Complete once it exits or is
// stopped. One mutex covers state reads, transitions, subscriber
// registration and history appends, so start/attach/stop are atomic
// with respect to each other.
type Slot struct {
	kind     domain.JobKind
	launcher port.Launcher
	notifier port.Notifier
	userID   string
	grace    time.Duration
	onEvict  func(*Slot)
	hub      *Hub

	mu         sync.Mutex
	state      domain.SlotState
	startedAt  time.Time
	exitCode   *int
	proc       port.Process
	evictTimer *time.Timer
}

func newSlot(kind domain.JobKind, launcher port.Launcher, notifier port.Notifier, userID string, grace time.Duration, onEvict func(*Slot)) *Slot {
	return &Slot{
		kind:     kind,
		launcher: launcher,
		notifier: notifier,
		userID:   userID,
		grace:    grace,
		onEvict:  onEvict,
		hub:      NewHub(),
		state:    domain.SlotIdle,
	}
}

// StartResult is what every start caller gets back: a subscription to
// the run's event stream. Started reports whether this call spawned
// the process or joined a run already in flight. Detach removes the
// subscription and is safe to call more than once.
type StartResult struct {
	Started bool
	Events  <-chan domain.Event
	Detach  func()
}

// Start spawns the external program if the slot is idle; otherwise the
// caller is attached to the existing run (live or recently completed)
// and replays its history. A spawn failure never surfaces as an error:
// the slot goes straight to Complete and the failure is delivered as
// the terminal event of the stream the caller just subscribed to.
func (s *Slot) Start(ctx context.Context, spec domain.CommandSpec) StartResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SlotIdle {
		return s.subscribeLocked(false)
	}

	proc, err := s.launcher.Launch(ctx, spec, s.hub.Publish, s.handleExit)
	if err != nil {
		logger.Error.Printf("%s: spawn failed: %v", s.kind, err)
		s.state = domain.SlotComplete
		s.hub.Publish(domain.ErrorEvent(fmt.Sprintf("failed to start: %v", err)))
		s.notify(false, err.Error())
		s.armEvictionLocked()
		return s.subscribeLocked(true)
	}

	s.state = domain.SlotRunning
	s.startedAt = time.Now()
	s.proc = proc
	logger.Info.Printf("%s: started %s", s.kind, spec.Path)

	return s.subscribeLocked(true)
}

// subscribeLocked attaches a new subscriber to the hub. Caller holds
// s.mu; the hub has its own lock, acquired strictly after the slot's.
func (s *Slot) subscribeLocked(started bool) StartResult {
	id, ch := s.hub.Attach()
	return StartResult{
		Started: started,
		Events:  ch,
		Detach:  func() { s.hub.Detach(id) },
	}
}

// handleExit is invoked by the launcher exactly once per started
// process. It is ignored when the run was already ended by Stop or by
// a fatal error marker in the output.
func (s *Slot) handleExit(status domain.ExitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SlotRunning {
		return
	}

	code := status.Code
	if status.Graceful {
		// The program vouched for its own completion; trust the
		// sentinel over the exit code.
		code = 0
	}

	s.state = domain.SlotComplete
	s.proc = nil
	s.exitCode = &code

	elapsed := time.Since(s.startedAt).Round(time.Second)
	msg := domain.CompletionMessage(code, elapsed.String())
	logger.Info.Printf("%s: %s", s.kind, msg)

	s.hub.Publish(domain.CompleteEvent(code, msg))
	s.notify(code == 0, msg)
	s.armEvictionLocked()
}

// StopResult reports the outcome of a stop request. Stopping a slot
// with no live process is benign, not an error.
type StopResult struct {
	Stopped bool
	Message string
}

// Stop signals the process and ends the run immediately, without
// waiting for the OS to confirm the process died. The eventual exit
// callback finds the slot already Complete and is a no-op.
func (s *Slot) Stop() StopResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.SlotRunning {
		return StopResult{Stopped: false, Message: domain.ErrNotRunning.Error()}
	}

	if s.proc != nil {
		if err := s.proc.Signal(); err != nil {
			logger.Warn.Printf("%s: signal failed: %v", s.kind, err)
		}
	}

	code := domain.CancelledExitCode
	s.state = domain.SlotComplete
	s.proc = nil
	s.exitCode = &code

	logger.Info.Printf("%s: stopped by request", s.kind)
	s.hub.Publish(domain.CancelledEvent())
	s.armEvictionLocked()

	return StopResult{Stopped: true, Message: "job cancelled"}
}

// History returns a copy of the run's event history.
func (s *Slot) History() []domain.Event {
	return s.hub.History()
}

// Snapshot is a point-in-time view of the slot for status responses.
type Snapshot struct {
	Kind      domain.JobKind   `json:"kind"`
	State     domain.SlotState `json:"state"`
	StartedAt *time.Time       `json:"startedAt,omitempty"`
	ExitCode  *int             `json:"exitCode,omitempty"`
}

func (s *Slot) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Kind: s.kind, State: s.state}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	snap.ExitCode = s.exitCode
	return snap
}

// armEvictionLocked schedules removal of the completed slot from the
// registry. The next start for this kind then builds a brand-new slot
// with fresh history. Caller holds s.mu.
func (s *Slot) armEvictionLocked() {
	if s.evictTimer != nil {
		return
	}
	s.evictTimer = time.AfterFunc(s.grace, func() {
		logger.Debug.Printf("%s: evicting completed slot", s.kind)
		s.onEvict(s)
	})
}

func (s *Slot) notify(success bool, body string) {
	if s.notifier == nil {
		return
	}
	title := s.kind.Display() + " finished"
	if !success {
		title = s.kind.Display() + " failed"
	}
	s.notifier.Notify(s.userID, domain.Notification{
		Title:              title,
		Body:               body,
		Tag:                "job-" + string(s.kind),
		RequireInteraction: !success,
	})
}
