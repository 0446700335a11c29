// ABOUTME: Per-address free-port pool for project VPN endpoints
// ABOUTME: Exclusive allocation over an atomic KV set store with race-free lazy seeding

package vpnpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when no free port remains for an address.
// Callers decide whether to expand the configured range or fail the
// request; the pool never retries.
var ErrPoolExhausted = errors.New("no free ports remaining")

// SetStore is the key-value backend the pool runs on. SAdd, SPop, and
// SCard must be atomic set operations; SetNX is an atomic
// create-if-absent used to guard first-use seeding across processes.
type SetStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key, value string) (bool, error)
	SAdd(ctx context.Context, key string, members ...int) error
	SPop(ctx context.Context, key string) (port int, ok bool, err error)
	SCard(ctx context.Context, key string) (int, error)
}

// Pool manages a bounded pool of ports per network address. The free
// set for an address is materialized on first use with every port in
// [start, end]. The pool has no notion of projects; callers bind the
// returned port to a tenant elsewhere.
type Pool struct {
	kv     SetStore
	start  int
	end    int
	logger *slog.Logger

	mu      sync.Mutex
	seeding map[string]*sync.Mutex // per-address seeding locks
}

// New creates a pool handing out ports in [start, end] inclusive.
func New(kv SetStore, start, end int) (*Pool, error) {
	if start <= 0 || end < start {
		return nil, fmt.Errorf("invalid port range [%d, %d]", start, end)
	}
	return &Pool{
		kv:      kv,
		start:   start,
		end:     end,
		logger:  slog.Default().With("component", "vpnpool"),
		seeding: make(map[string]*sync.Mutex),
	}, nil
}

// Allocate removes and returns one arbitrary free port for the address,
// seeding the free set first if this address has never been seen.
// Returns ErrPoolExhausted when the set is empty. Callers must not
// depend on which port is returned.
func (p *Pool) Allocate(ctx context.Context, address string) (int, error) {
	if err := p.ensureSeeded(ctx, address); err != nil {
		return 0, err
	}

	port, ok, err := p.kv.SPop(ctx, portsKey(address))
	if err != nil {
		return 0, fmt.Errorf("popping free port: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("address %s: %w", address, ErrPoolExhausted)
	}

	p.logger.Debug("allocated port", "address", address, "port", port)
	return port, nil
}

// Release returns a port to the free set for the address. Re-inserting
// a port that is already free is a no-op by set semantics, so a
// double release cannot corrupt the pool.
func (p *Pool) Release(ctx context.Context, address string, port int) error {
	if port < p.start || port > p.end {
		return fmt.Errorf("port %d outside pool range [%d, %d]", port, p.start, p.end)
	}
	if err := p.kv.SAdd(ctx, portsKey(address), port); err != nil {
		return fmt.Errorf("releasing port: %w", err)
	}

	p.logger.Debug("released port", "address", address, "port", port)
	return nil
}

// Count returns the current free-port cardinality for the address. For
// capacity monitoring only; the value may be stale by the time it is
// read.
func (p *Pool) Count(ctx context.Context, address string) (int, error) {
	if err := p.ensureSeeded(ctx, address); err != nil {
		return 0, err
	}
	n, err := p.kv.SCard(ctx, portsKey(address))
	if err != nil {
		return 0, fmt.Errorf("counting free ports: %w", err)
	}
	return n, nil
}

// ensureSeeded materializes the free set for an address exactly once.
// In-process callers serialize on a per-address mutex; across processes
// the SetNX claim key guarantees a single seeder, and late arrivals wait
// for the ready marker. Re-seeding after ports have been handed out
// would re-insert allocated ports, so the claim is never retried.
func (p *Pool) ensureSeeded(ctx context.Context, address string) error {
	ready := readyKey(address)

	done, err := p.kv.Exists(ctx, ready)
	if err != nil {
		return fmt.Errorf("checking pool marker: %w", err)
	}
	if done {
		return nil
	}

	lock := p.addressLock(address)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; another goroutine may have seeded.
	done, err = p.kv.Exists(ctx, ready)
	if err != nil {
		return fmt.Errorf("checking pool marker: %w", err)
	}
	if done {
		return nil
	}

	claimed, err := p.kv.SetNX(ctx, claimKey(address), "1")
	if err != nil {
		return fmt.Errorf("claiming pool seed: %w", err)
	}

	if claimed {
		ports := make([]int, 0, p.end-p.start+1)
		for port := p.start; port <= p.end; port++ {
			ports = append(ports, port)
		}
		if err := p.kv.SAdd(ctx, portsKey(address), ports...); err != nil {
			return fmt.Errorf("seeding free ports: %w", err)
		}
		if _, err := p.kv.SetNX(ctx, ready, "1"); err != nil {
			return fmt.Errorf("marking pool ready: %w", err)
		}
		p.logger.Info("seeded port pool", "address", address, "start", p.start, "end", p.end)
		return nil
	}

	// Another process holds the claim; wait for it to finish seeding.
	for {
		done, err := p.kv.Exists(ctx, ready)
		if err != nil {
			return fmt.Errorf("waiting for pool seed: %w", err)
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (p *Pool) addressLock(address string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.seeding[address]
	if !ok {
		lock = &sync.Mutex{}
		p.seeding[address] = lock
	}
	return lock
}

func portsKey(address string) string {
	return fmt.Sprintf("ip:%s:ports", address)
}

func claimKey(address string) string {
	return fmt.Sprintf("ip:%s:ports:claim", address)
}

func readyKey(address string) string {
	return fmt.Sprintf("ip:%s:ports:ready", address)
}
