package executors

import (
	"context"
	"fmt"
	"sync"
)

// DNSManager maintains the public record pointing at a universe's nodes
type DNSManager interface {
	// Upsert creates or edits the record; repeated calls with the same
	// addresses are a no-op.
	Upsert(ctx context.Context, universeName string, addresses []string) error
	// Delete removes the record; deleting a missing record is a no-op.
	Delete(ctx context.Context, universeName string) error
}

// FakeDNSManager is an in-memory DNSManager
type FakeDNSManager struct {
	mu      sync.Mutex
	zone    string
	records map[string][]string
}

// NewFakeDNSManager creates a fake DNS manager for the given zone
func NewFakeDNSManager(zone string) *FakeDNSManager {
	return &FakeDNSManager{
		zone:    zone,
		records: make(map[string][]string),
	}
}

// Upsert stores the record
func (d *FakeDNSManager) Upsert(ctx context.Context, universeName string, addresses []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[d.fqdn(universeName)] = append([]string(nil), addresses...)
	return nil
}

// Delete removes the record
func (d *FakeDNSManager) Delete(ctx context.Context, universeName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, d.fqdn(universeName))
	return nil
}

// Lookup returns the stored addresses for a universe
func (d *FakeDNSManager) Lookup(universeName string) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addrs, ok := d.records[d.fqdn(universeName)]
	return addrs, ok
}

func (d *FakeDNSManager) fqdn(universeName string) string {
	return fmt.Sprintf("%s.%s", universeName, d.zone)
}
