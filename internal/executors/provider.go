package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// InstanceOffering describes an instance type a provider can supply
type InstanceOffering struct {
	InstanceType string  `json:"instance_type"`
	NumCores     int     `json:"num_cores"`
	MemSizeGB    float64 `json:"mem_size_gb"`
	Zone         string  `json:"zone"`
}

// ProviderAPI is the raw cloud provider surface
type ProviderAPI interface {
	ListOfferings(ctx context.Context, region string) ([]InstanceOffering, error)
	ReserveInstance(ctx context.Context, zone, instanceType string) (string, error)
	ReleaseInstance(ctx context.Context, instanceID string) error
}

// ProviderClient wraps a ProviderAPI with client-side rate limiting.
// Rate limiting lives here, not in the engine: the client is the one
// shared collaborator talking to the provider.
type ProviderClient struct {
	api     ProviderAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewProviderClient creates a rate-limited provider client
func NewProviderClient(api ProviderAPI, rps float64, burst int, logger *slog.Logger) *ProviderClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderClient{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With(slog.String("component", "provider")),
	}
}

// ListOfferings lists instance offerings for a region
func (c *ProviderClient) ListOfferings(ctx context.Context, region string) ([]InstanceOffering, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return c.api.ListOfferings(ctx, region)
}

// ReserveInstance reserves an instance in a zone
func (c *ProviderClient) ReserveInstance(ctx context.Context, zone, instanceType string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.api.ReserveInstance(ctx, zone, instanceType)
}

// ReleaseInstance releases a reserved instance
func (c *ProviderClient) ReleaseInstance(ctx context.Context, instanceID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return c.api.ReleaseInstance(ctx, instanceID)
}

// FakeProviderAPI is an in-memory ProviderAPI
type FakeProviderAPI struct {
	mu        sync.Mutex
	offerings map[string][]InstanceOffering
	reserved  map[string]string // instanceID -> zone
	nextID    int
}

// NewFakeProviderAPI creates a fake provider with a default offering set
func NewFakeProviderAPI() *FakeProviderAPI {
	return &FakeProviderAPI{
		offerings: map[string][]InstanceOffering{
			"us-west-2": {
				{InstanceType: "c5.large", NumCores: 2, MemSizeGB: 4, Zone: "us-west-2a"},
				{InstanceType: "c5.xlarge", NumCores: 4, MemSizeGB: 8, Zone: "us-west-2a"},
			},
		},
		reserved: make(map[string]string),
	}
}

// ListOfferings returns the configured offerings for a region
func (f *FakeProviderAPI) ListOfferings(ctx context.Context, region string) ([]InstanceOffering, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offerings, ok := f.offerings[region]
	if !ok {
		return nil, fmt.Errorf("unknown region %s", region)
	}
	return append([]InstanceOffering(nil), offerings...), nil
}

// ReserveInstance reserves a fake instance
func (f *FakeProviderAPI) ReserveInstance(ctx context.Context, zone, instanceType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("i-%06d", f.nextID)
	f.reserved[id] = zone
	return id, nil
}

// ReleaseInstance releases a fake instance; unknown ids are a no-op
func (f *FakeProviderAPI) ReleaseInstance(ctx context.Context, instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reserved, instanceID)
	return nil
}
