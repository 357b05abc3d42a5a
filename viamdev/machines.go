// Package viamdev adapts Viam machine resources to the agent's device interfaces.
package viamdev

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

// Machine is the part of a robot client the adapters need.
type Machine interface {
	ResourceByName(name resource.Name) (resource.Resource, error)
	Close(ctx context.Context) error
}

// Credentials authenticate against a remote machine. An empty key dials without credentials.
type Credentials struct {
	APIKeyID string
	APIKey   string
}

// DialFunc connects to a machine.
type DialFunc func(ctx context.Context, address string, creds Credentials, logger logging.Logger) (Machine, error)

// Dial connects with the Viam robot client.
func Dial(ctx context.Context, address string, creds Credentials, logger logging.Logger) (Machine, error) {
	var opts []client.RobotClientOption
	if creds.APIKey != "" {
		opts = append(opts, client.WithDialOptions(rpc.WithEntityCredentials(
			creds.APIKeyID,
			rpc.Credentials{Type: rpc.CredentialsTypeAPIKey, Payload: creds.APIKey},
		)))
	}
	machine, err := client.New(ctx, address, logger, opts...)
	if err != nil {
		return nil, err
	}
	return machine, nil
}

type machineEntry struct {
	machine  Machine
	creds    Credentials
	refCount int64 // Atomic reference counter
	mu       sync.RWMutex
}

// MachineRegistry shares one client per machine address between the devices
// that live on it.
type MachineRegistry struct {
	entries map[string]*machineEntry // address -> entry
	mu      sync.RWMutex

	dial   DialFunc
	logger logging.Logger
}

// NewMachineRegistry returns an empty registry. A nil dial uses Dial.
func NewMachineRegistry(dial DialFunc, logger logging.Logger) *MachineRegistry {
	if dial == nil {
		dial = Dial
	}
	return &MachineRegistry{
		entries: make(map[string]*machineEntry),
		dial:    dial,
		logger:  logger,
	}
}

// Acquire returns the shared client for address, dialing it on first use.
// Every successful Acquire must be paired with a Release.
func (r *MachineRegistry) Acquire(ctx context.Context, address string, creds Credentials) (Machine, error) {
	r.mu.RLock()
	entry, exists := r.entries[address]
	r.mu.RUnlock()

	if exists {
		return r.acquireExisting(entry, address, creds)
	}

	return r.acquireNew(ctx, address, creds)
}

func (r *MachineRegistry) acquireExisting(entry *machineEntry, address string, creds Credentials) (Machine, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.machine == nil {
		return nil, fmt.Errorf("machine connection to %s is closing", address)
	}

	if entry.creds != creds {
		currentRefCount := atomic.LoadInt64(&entry.refCount)
		return nil, fmt.Errorf("conflict: existing connection to %s uses different credentials (refCount: %d)", address, currentRefCount)
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.machine, nil
}

func (r *MachineRegistry) acquireNew(ctx context.Context, address string, creds Credentials) (Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[address]; exists {
		return r.acquireExisting(entry, address, creds)
	}

	machine, err := r.dial(ctx, address, creds, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to machine at %s: %w", address, err)
	}

	entry := &machineEntry{machine: machine, creds: creds}
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[address] = entry

	r.logger.Infof("Connected to machine at %s", address)
	return machine, nil
}

// Release drops one reference and closes the client when none remain.
func (r *MachineRegistry) Release(ctx context.Context, address string) {
	r.mu.RLock()
	entry, exists := r.entries[address]
	r.mu.RUnlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	if entry.machine == nil {
		entry.mu.Unlock()
		return
	}
	currentRefCount := atomic.AddInt64(&entry.refCount, -1)
	if currentRefCount > 0 {
		entry.mu.Unlock()
		return
	}
	if err := entry.machine.Close(ctx); err != nil {
		r.logger.Warnf("error closing shared machine connection for %s: %v", address, err)
	}
	entry.machine = nil
	atomic.StoreInt64(&entry.refCount, 0)
	entry.mu.Unlock()

	// entry.mu is not held here; acquireNew takes r.mu before entry.mu
	r.mu.Lock()
	if r.entries[address] == entry {
		delete(r.entries, address)
	}
	r.mu.Unlock()
}

// ForceClose closes the client for address regardless of outstanding references.
func (r *MachineRegistry) ForceClose(ctx context.Context, address string) error {
	r.mu.Lock()
	entry, exists := r.entries[address]
	if exists {
		delete(r.entries, address)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	if entry.machine != nil {
		err = entry.machine.Close(ctx)
		entry.machine = nil
		atomic.StoreInt64(&entry.refCount, 0)
	}

	return err
}

// Status reports the reference count and whether a live client exists for address.
func (r *MachineRegistry) Status(address string) (int64, bool) {
	r.mu.RLock()
	entry, exists := r.entries[address]
	r.mu.RUnlock()

	if !exists {
		return 0, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return atomic.LoadInt64(&entry.refCount), entry.machine != nil
}

// Lease is one reference on a shared machine.
type Lease struct {
	Machine  Machine
	address  string
	registry *MachineRegistry
	once     sync.Once
}

// Lease acquires address and wraps the reference so it can be released once.
func (r *MachineRegistry) Lease(ctx context.Context, address string, creds Credentials) (*Lease, error) {
	m, err := r.Acquire(ctx, address, creds)
	if err != nil {
		return nil, err
	}
	return &Lease{Machine: m, address: address, registry: r}, nil
}

// Close releases the reference. Further calls do nothing.
func (l *Lease) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { l.registry.Release(ctx, l.address) })
	return nil
}
