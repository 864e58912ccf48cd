package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"universed/internal/universe"
)

// NodeParams carries what the agent needs to act on one node
type NodeParams struct {
	UniverseName    string
	NodeName        string
	InstanceType    string
	Zone            string
	SoftwareVersion string
}

// NodeAgent drives the per-node shell/provisioning layer. Every method is
// idempotent: re-running an already-applied action succeeds without
// duplicating infrastructure changes, so a resubmitted operation after a
// crash-recovered force-unlock is safe.
type NodeAgent interface {
	Provision(ctx context.Context, p NodeParams) error
	InstallSoftware(ctx context.Context, p NodeParams) error
	StartProcess(ctx context.Context, nodeName string, process universe.ServerProcess) error
	StopProcess(ctx context.Context, nodeName string, process universe.ServerProcess) error
	Destroy(ctx context.Context, nodeName string) error
}

// FakeNodeAgent is an in-memory NodeAgent for tests and the dev server.
// It records applied actions and stays idempotent across repeats.
type FakeNodeAgent struct {
	mu          sync.Mutex
	logger      *slog.Logger
	provisioned map[string]bool
	installed   map[string]bool
	running     map[string]bool // key: nodeName/process
	calls       []string

	// FailOn makes the named action return an error, keyed by
	// "action:nodeName" (e.g. "start:n2/tserver").
	FailOn map[string]error
}

// NewFakeNodeAgent creates an empty fake agent
func NewFakeNodeAgent(logger *slog.Logger) *FakeNodeAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &FakeNodeAgent{
		logger:      logger.With(slog.String("component", "nodeagent")),
		provisioned: make(map[string]bool),
		installed:   make(map[string]bool),
		running:     make(map[string]bool),
		FailOn:      make(map[string]error),
	}
}

func (a *FakeNodeAgent) record(call string) error {
	a.calls = append(a.calls, call)
	if err, ok := a.FailOn[call]; ok {
		return err
	}
	return nil
}

// Provision creates the server instance for a node
func (a *FakeNodeAgent) Provision(ctx context.Context, p NodeParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("provision:" + p.NodeName); err != nil {
		return err
	}
	a.provisioned[p.NodeName] = true
	return nil
}

// InstallSoftware installs or reinstalls the database software
func (a *FakeNodeAgent) InstallSoftware(ctx context.Context, p NodeParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("install:" + p.NodeName); err != nil {
		return err
	}
	if !a.provisioned[p.NodeName] {
		return fmt.Errorf("node %s is not provisioned", p.NodeName)
	}
	a.installed[p.NodeName] = true
	return nil
}

// StartProcess starts a server process if not already running
func (a *FakeNodeAgent) StartProcess(ctx context.Context, nodeName string, process universe.ServerProcess) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := nodeName + "/" + string(process)
	if err := a.record("start:" + key); err != nil {
		return err
	}
	a.running[key] = true
	return nil
}

// StopProcess stops a server process; stopping a stopped process is a no-op
func (a *FakeNodeAgent) StopProcess(ctx context.Context, nodeName string, process universe.ServerProcess) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := nodeName + "/" + string(process)
	if err := a.record("stop:" + key); err != nil {
		return err
	}
	delete(a.running, key)
	return nil
}

// Destroy tears down the server instance; destroying twice is a no-op
func (a *FakeNodeAgent) Destroy(ctx context.Context, nodeName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("destroy:" + nodeName); err != nil {
		return err
	}
	delete(a.provisioned, nodeName)
	delete(a.installed, nodeName)
	return nil
}

// IsProvisioned reports whether the node has a live instance
func (a *FakeNodeAgent) IsProvisioned(nodeName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provisioned[nodeName]
}

// IsRunning reports whether a process is running on a node
func (a *FakeNodeAgent) IsRunning(nodeName string, process universe.ServerProcess) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running[nodeName+"/"+string(process)]
}

// Calls returns the recorded action log
func (a *FakeNodeAgent) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}
