package service

import (
	"context"
	"sync"
	"time"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/port"
)

// Registry routes job requests to the one slot per kind. It is
// dependency-injected into the HTTP adapter; process-wide there is a
// single instance, and slots remove themselves after their grace
// period so the registry needs no explicit teardown.
type Registry struct {
	baseCtx  context.Context
	launcher port.Launcher
	notifier port.Notifier
	userID   string
	grace    time.Duration
	commands map[domain.JobKind]domain.CommandSpec

	mu    sync.Mutex
	slots map[domain.JobKind]*Slot
}

// NewRegistry builds the registry. baseCtx bounds the lifetime of
// spawned processes to the application, not to any single request: a
// client disconnecting must never kill a running job.
func NewRegistry(baseCtx context.Context, launcher port.Launcher, notifier port.Notifier, userID string, grace time.Duration, commands map[domain.JobKind]domain.CommandSpec) *Registry {
	return &Registry{
		baseCtx:  baseCtx,
		launcher: launcher,
		notifier: notifier,
		userID:   userID,
		grace:    grace,
		commands: commands,
		slots:    make(map[domain.JobKind]*Slot),
	}
}

// Start launches the job of the given kind, or attaches to the run
// already in flight. Unknown kinds fail before any stream is
// committed.
func (r *Registry) Start(kind domain.JobKind) (StartResult, error) {
	spec, ok := r.commands[kind]
	if !ok {
		return StartResult{}, domain.ErrUnknownKind
	}
	return r.getOrCreate(kind).Start(r.baseCtx, spec), nil
}

// Stop cancels the running job of the given kind, if any.
func (r *Registry) Stop(kind domain.JobKind) StopResult {
	slot, ok := r.Lookup(kind)
	if !ok {
		return StopResult{Stopped: false, Message: domain.ErrNotRunning.Error()}
	}
	return slot.Stop()
}

// Lookup returns the live slot for a kind, if one exists.
func (r *Registry) Lookup(kind domain.JobKind) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[kind]
	return slot, ok
}

// Snapshot reports the current state for a kind. Kinds without a live
// slot are idle by definition.
func (r *Registry) Snapshot(kind domain.JobKind) Snapshot {
	if slot, ok := r.Lookup(kind); ok {
		return slot.Snapshot()
	}
	return Snapshot{Kind: kind, State: domain.SlotIdle}
}

func (r *Registry) getOrCreate(kind domain.JobKind) *Slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.slots[kind]; ok {
		return slot
	}
	slot := newSlot(kind, r.launcher, r.notifier, r.userID, r.grace, r.evict)
	r.slots[kind] = slot
	return slot
}

// evict removes a completed slot. The pointer comparison guards
// against a stale timer removing a newer slot for the same kind.
func (r *Registry) evict(slot *Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[slot.kind] == slot {
		delete(r.slots, slot.kind)
	}
}
