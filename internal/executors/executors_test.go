package executors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"universed/internal/config"
	"universed/internal/universe"
)

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Backoff(context.Background(), fastRetry(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestBackoffExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Backoff(context.Background(), fastRetry(), func(ctx context.Context) error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "exhausted 4 attempts")
}

func TestBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
	defer cancel()

	policy := fastRetry()
	policy.InitialDelay = 50 * time.Millisecond

	err := Backoff(ctx, policy, func(ctx context.Context) error {
		return errors.New("down")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeNodeAgentIdempotence(t *testing.T) {
	ctx := context.Background()
	agent := NewFakeNodeAgent(nil)
	params := NodeParams{UniverseName: "u", NodeName: "n1", InstanceType: "c5.large"}

	require.NoError(t, agent.Provision(ctx, params))
	require.NoError(t, agent.Provision(ctx, params))
	assert.True(t, agent.IsProvisioned("n1"))

	require.NoError(t, agent.InstallSoftware(ctx, params))
	require.NoError(t, agent.StartProcess(ctx, "n1", universe.ProcessTserver))
	require.NoError(t, agent.StartProcess(ctx, "n1", universe.ProcessTserver))
	assert.True(t, agent.IsRunning("n1", universe.ProcessTserver))

	require.NoError(t, agent.Destroy(ctx, "n1"))
	require.NoError(t, agent.Destroy(ctx, "n1"))
	assert.False(t, agent.IsProvisioned("n1"))
}

func TestFakeNodeAgentInstallRequiresProvision(t *testing.T) {
	agent := NewFakeNodeAgent(nil)
	err := agent.InstallSoftware(context.Background(), NodeParams{NodeName: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not provisioned")
}

func TestFakeDBClientWaitForServer(t *testing.T) {
	ctx := context.Background()
	db := NewFakeDBClient(fastRetry())

	db.SetReadyAfter("n1", universe.ProcessTserver, 2)
	require.NoError(t, db.WaitForServer(ctx, "n1", universe.ProcessTserver, time.Second))

	db.SetReady("n2", universe.ProcessMaster, false)
	err := db.WaitForServer(ctx, "n2", universe.ProcessMaster, 50*time.Millisecond)
	require.Error(t, err)
}

func TestProviderClientRateLimits(t *testing.T) {
	ctx := context.Background()
	client := NewProviderClient(NewFakeProviderAPI(), 100, 1, nil)

	offerings, err := client.ListOfferings(ctx, "us-west-2")
	require.NoError(t, err)
	assert.Len(t, offerings, 2)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.ReserveInstance(ctx, "us-west-2a", "c5.large")
		require.NoError(t, err)
	}
	// Burst of 1 at 100 rps forces at least ~20ms of pacing for 3 calls.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestFakeDNSManager(t *testing.T) {
	ctx := context.Background()
	dns := NewFakeDNSManager("universe.local")

	require.NoError(t, dns.Upsert(ctx, "prod", []string{"10.0.0.1", "10.0.0.2"}))
	addrs, ok := dns.Lookup("prod")
	require.True(t, ok)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	require.NoError(t, dns.Delete(ctx, "prod"))
	require.NoError(t, dns.Delete(ctx, "prod"))
	_, ok = dns.Lookup("prod")
	assert.False(t, ok)
}
