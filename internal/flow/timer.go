package flow

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Timer schedules callbacks. Every pacing delay of a dialogue session goes through it.
type Timer interface {
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	Cancel(id string) error
	Stop()
}

// TimerInfo describes a pending scheduled callback.
type TimerInfo struct {
	ID          string        `json:"id"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Remaining   time.Duration `json:"remaining"`
}

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	expiresAt   time.Time
}

// SimpleTimer implements the Timer interface using Go's standard time package.
type SimpleTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
	nextID int64
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	slog.Debug("Creating SimpleTimer")
	return &SimpleTimer{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter schedules a function to run after a delay.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("nil callback")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)

	now := time.Now()
	t.timers[id] = &timerEntry{
		scheduledAt: now,
		expiresAt:   now.Add(delay),
	}
	// The entry is registered before AfterFunc so a zero delay cannot race the cleanup.
	t.timers[id].timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		slog.Debug("SimpleTimer executing scheduled function", "id", id)
		fn()
	})

	slog.Debug("SimpleTimer ScheduleAfter", "id", id, "delay", delay)
	return id, nil
}

// Cancel cancels a scheduled function by ID. Unknown IDs are ignored.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("SimpleTimer Cancel succeeded", "id", id)
		return nil
	}

	slog.Debug("SimpleTimer Cancel: timer not found", "id", id)
	return nil
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	slog.Info("SimpleTimer stopped all timers", "count", len(t.timers))
	t.timers = make(map[string]*timerEntry)
}

// ListActive returns information about all pending timers, oldest first.
func (t *SimpleTimer) ListActive() []TimerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	result := make([]TimerInfo, 0, len(t.timers))
	for id, entry := range t.timers {
		remaining := entry.expiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		result = append(result, TimerInfo{
			ID:          id,
			ScheduledAt: entry.scheduledAt,
			ExpiresAt:   entry.expiresAt,
			Remaining:   remaining,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ScheduledAt.Before(result[j].ScheduledAt) })
	return result
}

// ManualTimer is a Timer whose callbacks only run when FireNext or FireAll is called.
// It is used by tests and by callers that want to step a session deterministically.
type ManualTimer struct {
	mu      sync.Mutex
	nextID  int64
	pending []manualEntry
}

type manualEntry struct {
	id    string
	delay time.Duration
	fn    func()
}

// NewManualTimer creates an empty ManualTimer.
func NewManualTimer() *ManualTimer {
	return &ManualTimer{}
}

// ScheduleAfter records fn without running it.
func (m *ManualTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("nil callback")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("manual_%d", m.nextID)
	m.pending = append(m.pending, manualEntry{id: id, delay: delay, fn: fn})
	return id, nil
}

// Cancel drops a pending callback.
func (m *ManualTimer) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.pending {
		if e.id == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return nil
}

// Stop drops every pending callback.
func (m *ManualTimer) Stop() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

// Pending returns the number of callbacks waiting to fire.
func (m *ManualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// NextDelay returns the delay of the oldest pending callback.
func (m *ManualTimer) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0, false
	}
	return m.pending[0].delay, true
}

// FireNext runs the oldest pending callback on the calling goroutine.
func (m *ManualTimer) FireNext() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	e := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	e.fn()
	return true
}

// FireAll runs callbacks, including ones scheduled while firing, until none remain.
func (m *ManualTimer) FireAll() int {
	n := 0
	for m.FireNext() {
		n++
	}
	return n
}
