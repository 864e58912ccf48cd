package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"universed/internal/config"
	"universed/internal/universe"
)

// DBClient talks to the database cluster itself: readiness probes, master
// quorum membership changes, DDL. Waits block the calling worker up to the
// configured timeout; retries with exponential backoff happen inside this
// client, never in the step group queue.
type DBClient interface {
	WaitForServer(ctx context.Context, nodeName string, process universe.ServerProcess, timeout time.Duration) error
	ChangeMasterConfig(ctx context.Context, nodeName string, add bool) error
	WaitForLoadBalance(ctx context.Context, timeout time.Duration) error
	CreateTable(ctx context.Context, keyspace, table string) error
}

// RPCDBClient implements DBClient against a readiness probe function,
// retrying transient failures with bounded backoff.
type RPCDBClient struct {
	probe  func(ctx context.Context, nodeName string, process universe.ServerProcess) error
	retry  config.RetryConfig
	logger *slog.Logger
}

// NewRPCDBClient creates a DB client with the given probe and retry policy
func NewRPCDBClient(probe func(ctx context.Context, nodeName string, process universe.ServerProcess) error, retry config.RetryConfig, logger *slog.Logger) *RPCDBClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCDBClient{
		probe:  probe,
		retry:  retry,
		logger: logger.With(slog.String("component", "dbclient")),
	}
}

// WaitForServer blocks until the process responds or the timeout elapses
func (c *RPCDBClient) WaitForServer(ctx context.Context, nodeName string, process universe.ServerProcess, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := Backoff(waitCtx, c.retry, func(ctx context.Context) error {
		return c.probe(ctx, nodeName, process)
	})
	if err != nil {
		return fmt.Errorf("server %s/%s not ready within %s: %w", nodeName, process, timeout, err)
	}
	return nil
}

// ChangeMasterConfig is unsupported on the probe-backed client
func (c *RPCDBClient) ChangeMasterConfig(ctx context.Context, nodeName string, add bool) error {
	return fmt.Errorf("change master config not supported by probe client")
}

// WaitForLoadBalance is unsupported on the probe-backed client
func (c *RPCDBClient) WaitForLoadBalance(ctx context.Context, timeout time.Duration) error {
	return fmt.Errorf("wait for load balance not supported by probe client")
}

// CreateTable is unsupported on the probe-backed client
func (c *RPCDBClient) CreateTable(ctx context.Context, keyspace, table string) error {
	return fmt.Errorf("create table not supported by probe client")
}

// FakeDBClient is an in-memory DBClient for tests and the dev server
type FakeDBClient struct {
	mu sync.Mutex

	// ready marks which node/process pairs respond to probes.
	ready map[string]bool

	// readyAfter delays readiness by a number of probes, simulating a
	// slow-starting server.
	readyAfter map[string]int

	masters map[string]bool
	tables  map[string]bool
	retry   config.RetryConfig

	// LoadBalanced controls WaitForLoadBalance.
	LoadBalanced bool

	// FailCreateTable makes CreateTable return this error.
	FailCreateTable error
}

// NewFakeDBClient creates a fake DB client where everything is ready
func NewFakeDBClient(retry config.RetryConfig) *FakeDBClient {
	return &FakeDBClient{
		ready:        make(map[string]bool),
		readyAfter:   make(map[string]int),
		masters:      make(map[string]bool),
		tables:       make(map[string]bool),
		retry:        retry,
		LoadBalanced: true,
	}
}

// SetReady marks a node/process pair ready or not
func (f *FakeDBClient) SetReady(nodeName string, process universe.ServerProcess, ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready[nodeName+"/"+string(process)] = ready
}

// SetReadyAfter makes a node/process pair become ready after n probes
func (f *FakeDBClient) SetReadyAfter(nodeName string, process universe.ServerProcess, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyAfter[nodeName+"/"+string(process)] = n
}

func (f *FakeDBClient) probe(nodeName string, process universe.ServerProcess) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := nodeName + "/" + string(process)
	if n, ok := f.readyAfter[key]; ok {
		if n > 0 {
			f.readyAfter[key] = n - 1
			return fmt.Errorf("server %s not ready yet", key)
		}
		return nil
	}
	if ready, ok := f.ready[key]; ok && !ready {
		return fmt.Errorf("server %s not responding", key)
	}
	return nil
}

// WaitForServer probes with backoff until ready or timed out
func (f *FakeDBClient) WaitForServer(ctx context.Context, nodeName string, process universe.ServerProcess, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return Backoff(waitCtx, f.retry, func(ctx context.Context) error {
		return f.probe(nodeName, process)
	})
}

// ChangeMasterConfig adds or removes a node from the master quorum
func (f *FakeDBClient) ChangeMasterConfig(ctx context.Context, nodeName string, add bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if add {
		f.masters[nodeName] = true
	} else {
		delete(f.masters, nodeName)
	}
	return nil
}

// WaitForLoadBalance reports the configured balance state
func (f *FakeDBClient) WaitForLoadBalance(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	balanced := f.LoadBalanced
	f.mu.Unlock()
	if !balanced {
		return fmt.Errorf("load balancer did not settle within %s", timeout)
	}
	return nil
}

// CreateTable records a created table; creating it twice is a no-op
func (f *FakeDBClient) CreateTable(ctx context.Context, keyspace, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateTable != nil {
		return f.FailCreateTable
	}
	f.tables[keyspace+"."+table] = true
	return nil
}

// HasTable reports whether a table was created
func (f *FakeDBClient) HasTable(keyspace, table string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[keyspace+"."+table]
}

// InMasterQuorum reports whether a node is in the master quorum
func (f *FakeDBClient) InMasterQuorum(nodeName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.masters[nodeName]
}
