package commissioner

import (
	"log/slog"
	"time"

	"universed/internal/config"
	"universed/internal/executors"
	"universed/internal/universe"
)

// Deps bundles everything planners and steps need. Passing one explicit
// bundle keeps step constructors short and makes tests trivial to wire
// with fakes.
type Deps struct {
	Universes universe.Store
	Tasks     TaskStore

	NodeAgent executors.NodeAgent
	Provider  *executors.ProviderClient
	DNS       executors.DNSManager
	DB        executors.DBClient

	Retry config.RetryConfig

	Clock       func() time.Time
	Logger      *slog.Logger
	Metrics     *Metrics
	Broadcaster *StatusBroadcaster
}

// Now returns the current time via the injected clock, falling back to
// the wall clock
func (d *Deps) Now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Log returns the configured logger or the process default
func (d *Deps) Log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
