// Package recovery restores in-process state after FastCab restarts.
//
// Sessions and bookings survive in the store, but trip notification timers
// live only in memory. Components implementing Recoverable rebuild that
// state from the store before the server starts accepting messages.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component that can rebuild its state at startup.
type Recoverable interface {
	Name() string
	RecoverState(ctx context.Context) error
}

// Manager runs every registered Recoverable.
type Manager struct {
	recoverables []Recoverable
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component to recover.
func (m *Manager) Register(r Recoverable) {
	m.recoverables = append(m.recoverables, r)
}

// RecoverAll recovers every component. A failing component is logged and
// skipped; the returned error reports how many failed.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting recovery", "components", len(m.recoverables))

	failed := 0
	for _, r := range m.recoverables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RecoverState(ctx); err != nil {
			slog.Error("Component recovery failed", "component", r.Name(), "error", err)
			failed++
		}
	}

	slog.Info("Recovery completed", "recovered", len(m.recoverables)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.recoverables))
	}
	return nil
}
