package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ManualTimer is a Timer driven by an explicit clock. Nothing fires until
// Advance moves the clock past a task's deadline. Used by tests and demos.
type ManualTimer struct {
	mu     sync.Mutex
	now    time.Time
	nextID int64
	tasks  map[string]*manualTask
}

type manualTask struct {
	id  string
	at  time.Time
	seq int64
	fn  func()
}

// NewManualTimer creates a manual timer whose clock starts at start.
func NewManualTimer(start time.Time) *ManualTimer {
	return &ManualTimer{now: start, tasks: make(map[string]*manualTask)}
}

// Now returns the current fake time. It can be passed as an engine clock.
func (m *ManualTimer) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// ScheduleAfter registers fn to run once the clock reaches now+delay.
func (m *ManualTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("timer: nil function")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("manual_%d", m.nextID)
	m.tasks[id] = &manualTask{id: id, at: m.now.Add(delay), seq: m.nextID, fn: fn}
	return id, nil
}

// Cancel removes a pending task.
func (m *ManualTimer) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

// Stop removes every pending task.
func (m *ManualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]*manualTask)
}

// Pending returns the number of tasks not yet fired.
func (m *ManualTimer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward by d and runs every task that became due,
// in deadline order, synchronously on the caller's goroutine. Tasks scheduled
// by a firing task run in the same call if they fall within the window.
func (m *ManualTimer) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		delete(m.tasks, next.id)
		m.now = next.at
		m.mu.Unlock()

		next.fn()
	}
}

func (m *ManualTimer) nextDueLocked(target time.Time) *manualTask {
	var due []*manualTask
	for _, t := range m.tasks {
		if !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}
