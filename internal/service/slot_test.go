package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/port"
)

type fakeProcess struct {
	signals atomic.Int32
}

func (p *fakeProcess) Signal() error {
	p.signals.Add(1)
	return nil
}

// fakeLauncher plays back a scripted process. The script runs on its
// own goroutine, like a real process supervisor would.
type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	procs    []*fakeProcess
	err      error
	script   func(run int, onEvent func(domain.Event), onExit func(domain.ExitStatus))
	wg       sync.WaitGroup
}

func (f *fakeLauncher) Launch(_ context.Context, _ domain.CommandSpec, onEvent func(domain.Event), onExit func(domain.ExitStatus)) (port.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.launches++
	run := f.launches
	proc := &fakeProcess{}
	f.procs = append(f.procs, proc)

	if f.script != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.script(run, onEvent, onExit)
		}()
	}
	return proc, nil
}

func (f *fakeLauncher) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []domain.Notification
	users []string
}

func (f *fakeNotifier) Notify(userID string, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	f.calls = append(f.calls, n)
}

func (f *fakeNotifier) last() (domain.Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return domain.Notification{}, false
	}
	return f.calls[len(f.calls)-1], true
}

// testGrace keeps eviction timers pending for the whole test unless a
// test opts into a short grace period explicitly.
const testGrace = time.Hour

func newTestSlot(t *testing.T, launcher *fakeLauncher, notifier *fakeNotifier, grace time.Duration, onEvict func(*Slot)) *Slot {
	t.Helper()
	if onEvict == nil {
		onEvict = func(*Slot) {}
	}
	slot := newSlot(domain.KindVideoOptimize, launcher, notifier, "admin", grace, onEvict)
	t.Cleanup(func() {
		launcher.wg.Wait()
		slot.mu.Lock()
		if slot.evictTimer != nil {
			slot.evictTimer.Stop()
		}
		slot.mu.Unlock()
	})
	return slot
}

func spec() domain.CommandSpec {
	return domain.CommandSpec{Kind: domain.KindVideoOptimize, Path: "/usr/bin/true"}
}

func waitTerminal(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				t.Fatal("channel closed before terminal event")
			}
			if ev.Terminal() {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
		}
	}
}

func TestSlot_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	launcher := &fakeLauncher{
		script: func(_ int, onEvent func(domain.Event), onExit func(domain.ExitStatus)) {
			onEvent(domain.OutputEvent(domain.StreamStdout, "working"))
			<-release
			onExit(domain.ExitStatus{Code: 0})
		},
	}
	slot := newTestSlot(t, launcher, &fakeNotifier{}, testGrace, nil)

	const callers = 16
	results := make([]StartResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = slot.Start(context.Background(), spec())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, launcher.launchCount(), "exactly one process spawned")

	started := 0
	for _, res := range results {
		if res.Started {
			started++
		}
	}
	assert.Equal(t, 1, started, "exactly one caller started the run")

	close(release)

	// Every caller observes the same run: same events, same terminal.
	for _, res := range results {
		first := <-res.Events
		assert.Equal(t, "working", first.Message)
		term := waitTerminal(t, res.Events)
		require.NotNil(t, term.ExitCode)
		assert.Equal(t, 0, *term.ExitCode)
		res.Detach()
	}
}

func TestSlot_ExitCodeMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   domain.ExitStatus
		wantCode int
		wantMsg  string
	}{
		{
			name:     "clean exit",
			status:   domain.ExitStatus{Code: 0},
			wantCode: 0,
		},
		{
			name:     "nonzero exit",
			status:   domain.ExitStatus{Code: 7},
			wantCode: 7,
			wantMsg:  "failed with code 7",
		},
		{
			name:     "graceful sentinel overrides exit code",
			status:   domain.ExitStatus{Code: 3, Graceful: true},
			wantCode: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &fakeLauncher{
				script: func(_ int, _ func(domain.Event), onExit func(domain.ExitStatus)) {
					onExit(tt.status)
				},
			}
			slot := newTestSlot(t, launcher, &fakeNotifier{}, testGrace, nil)

			res := slot.Start(context.Background(), spec())
			term := waitTerminal(t, res.Events)

			assert.Equal(t, domain.EventComplete, term.Type)
			require.NotNil(t, term.ExitCode)
			assert.Equal(t, tt.wantCode, *term.ExitCode)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, term.Message)
			}

			snap := slot.Snapshot()
			assert.Equal(t, domain.SlotComplete, snap.State)
			require.NotNil(t, snap.ExitCode)
			assert.Equal(t, tt.wantCode, *snap.ExitCode)
		})
	}
}

func TestSlot_StopPublishesCancelledWithoutWaiting(t *testing.T) {
	exitGate := make(chan struct{})
	launcher := &fakeLauncher{
		script: func(_ int, onEvent func(domain.Event), onExit func(domain.ExitStatus)) {
			onEvent(domain.OutputEvent(domain.StreamStdout, "running"))
			<-exitGate
			onExit(domain.ExitStatus{Code: 1})
		},
	}
	slot := newTestSlot(t, launcher, &fakeNotifier{}, testGrace, nil)

	res := slot.Start(context.Background(), spec())
	assert.Equal(t, "running", (<-res.Events).Message)

	// The scripted process is still alive when Stop returns.
	stop := slot.Stop()
	assert.True(t, stop.Stopped)

	term := waitTerminal(t, res.Events)
	assert.True(t, term.Cancelled)
	require.NotNil(t, term.ExitCode)
	assert.Equal(t, domain.CancelledExitCode, *term.ExitCode)
	assert.Equal(t, int32(1), launcher.procs[0].signals.Load(), "process was signalled")

	// Let the process die; its exit must not add a second terminal.
	close(exitGate)
	launcher.wg.Wait()

	history := slot.History()
	terminals := 0
	for _, ev := range history {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
	assert.True(t, history[len(history)-1].Terminal())
}

func TestSlot_StopWhenIdle(t *testing.T) {
	slot := newTestSlot(t, &fakeLauncher{}, &fakeNotifier{}, testGrace, nil)

	res := slot.Stop()
	assert.False(t, res.Stopped)
	assert.Equal(t, "no job running", res.Message)
}

func TestSlot_SpawnFailure(t *testing.T) {
	launcher := &fakeLauncher{err: fmt.Errorf("exec: %q: executable file not found", "nope")}
	notifier := &fakeNotifier{}
	slot := newTestSlot(t, launcher, notifier, testGrace, nil)

	res := slot.Start(context.Background(), spec())

	// No Running state was ever observable; the stream carries the
	// failure as its terminal event.
	term := waitTerminal(t, res.Events)
	assert.Equal(t, domain.EventError, term.Type)
	assert.Contains(t, term.Message, "failed to start")

	snap := slot.Snapshot()
	assert.Equal(t, domain.SlotComplete, snap.State)
	assert.Nil(t, snap.StartedAt)

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Contains(t, n.Title, "failed")
}

func TestSlot_ErrorMarkerSuppressesCompleteEvent(t *testing.T) {
	launcher := &fakeLauncher{
		script: func(_ int, onEvent func(domain.Event), onExit func(domain.ExitStatus)) {
			onEvent(domain.ErrorEvent("disk full"))
			onExit(domain.ExitStatus{Code: 1})
		},
	}
	slot := newTestSlot(t, launcher, &fakeNotifier{}, testGrace, nil)

	res := slot.Start(context.Background(), spec())
	term := waitTerminal(t, res.Events)
	assert.Equal(t, domain.EventError, term.Type)
	assert.Equal(t, "disk full", term.Message)

	launcher.wg.Wait()
	history := slot.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.EventError, history[0].Type)
}

func TestSlot_NotifierReceivesOutcome(t *testing.T) {
	launcher := &fakeLauncher{
		script: func(_ int, _ func(domain.Event), onExit func(domain.ExitStatus)) {
			onExit(domain.ExitStatus{Code: 7})
		},
	}
	notifier := &fakeNotifier{}
	slot := newTestSlot(t, launcher, notifier, testGrace, nil)

	res := slot.Start(context.Background(), spec())
	waitTerminal(t, res.Events)

	n, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, "Video optimization failed", n.Title)
	assert.Equal(t, "failed with code 7", n.Body)
	assert.Equal(t, "job-video-optimize", n.Tag)
	assert.True(t, n.RequireInteraction)
	assert.Equal(t, []string{"admin"}, notifier.users)
}

func TestSlot_EvictionFiresAfterGracePeriod(t *testing.T) {
	launcher := &fakeLauncher{
		script: func(_ int, _ func(domain.Event), onExit func(domain.ExitStatus)) {
			onExit(domain.ExitStatus{Code: 0})
		},
	}
	evicted := make(chan *Slot, 1)
	slot := newTestSlot(t, launcher, &fakeNotifier{}, 10*time.Millisecond, func(s *Slot) {
		evicted <- s
	})

	res := slot.Start(context.Background(), spec())
	waitTerminal(t, res.Events)

	select {
	case s := <-evicted:
		assert.Same(t, slot, s)
	case <-time.After(5 * time.Second):
		t.Fatal("eviction did not fire")
	}
}

func TestSlot_StartDuringGracePeriodReplaysCompletedRun(t *testing.T) {
	launcher := &fakeLauncher{
		script: func(_ int, onEvent func(domain.Event), onExit func(domain.ExitStatus)) {
			onEvent(domain.OutputEvent(domain.StreamStdout, "did things"))
			onExit(domain.ExitStatus{Code: 0})
		},
	}
	slot := newTestSlot(t, launcher, &fakeNotifier{}, testGrace, nil)

	first := slot.Start(context.Background(), spec())
	waitTerminal(t, first.Events)

	// The slot is Complete but not yet evicted: a new start joins the
	// finished run instead of spawning again.
	second := slot.Start(context.Background(), spec())
	assert.False(t, second.Started)
	assert.Equal(t, 1, launcher.launchCount())

	assert.Equal(t, "did things", (<-second.Events).Message)
	term := waitTerminal(t, second.Events)
	assert.Equal(t, domain.EventComplete, term.Type)
}
