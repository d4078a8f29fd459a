// Package tracker holds the security monitor's transient per-IP state:
// sliding-window request and failed-login counters plus the blocked set.
//
// The in-memory implementation is per-process; blocking and rate decisions
// are only locally consistent across multiple instances. Deployments that
// need global consistency use the Redis implementation instead.
package tracker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Tracker is the state backend for the security monitor. Record methods
// append a timestamp, prune entries outside the window and return the count
// remaining, so increment and check happen as one atomic step.
type Tracker interface {
	// RecordRequest records one request from ip and returns how many requests
	// the window now holds, including this one.
	RecordRequest(ctx context.Context, ip string, window time.Duration) (int, error)

	// RecordFailedLogin records one failed authentication from ip and returns
	// the windowed failure count, including this one.
	RecordFailedLogin(ctx context.Context, ip string, window time.Duration) (int, error)

	// ClearFailedLogins resets the failure counter for ip (e.g. after a
	// successful login).
	ClearFailedLogins(ctx context.Context, ip string) error

	// Block adds ip to the blocked set. ttl zero means the block never
	// expires (process lifetime for the in-memory tracker).
	Block(ctx context.Context, ip string, ttl time.Duration) error

	// IsBlocked reports whether ip is currently blocked.
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// shardCount trades memory for lock contention; power of two for cheap
// modulo.
const shardCount = 32

// Memory is the in-process Tracker. State is sharded by IP with one mutex
// per shard so the increment-then-check invariant holds under concurrent
// requests for the same IP.
type Memory struct {
	shards [shardCount]*shard
	now    func() time.Time
}

type shard struct {
	mu    sync.Mutex
	state map[string]*ipState
}

type ipState struct {
	requests     []time.Time
	failures     []time.Time
	blocked      bool
	blockedUntil time.Time // zero with blocked=true means permanent
}

// MemoryOption customizes the in-memory tracker.
type MemoryOption func(*Memory)

// WithClock overrides the time source. Test use only.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory tracker.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for i := range m.shards {
		m.shards[i] = &shard{state: make(map[string]*ipState)}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) shardFor(ip string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Memory) RecordRequest(_ context.Context, ip string, window time.Duration) (int, error) {
	sh := m.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.getOrCreate(ip)
	now := m.now()
	st.requests = appendAndPrune(st.requests, now, window)
	return len(st.requests), nil
}

func (m *Memory) RecordFailedLogin(_ context.Context, ip string, window time.Duration) (int, error) {
	sh := m.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.getOrCreate(ip)
	now := m.now()
	st.failures = appendAndPrune(st.failures, now, window)
	return len(st.failures), nil
}

func (m *Memory) ClearFailedLogins(_ context.Context, ip string) error {
	sh := m.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if st, ok := sh.state[ip]; ok {
		st.failures = nil
	}
	return nil
}

func (m *Memory) Block(_ context.Context, ip string, ttl time.Duration) error {
	sh := m.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.getOrCreate(ip)
	st.blocked = true
	if ttl > 0 {
		st.blockedUntil = m.now().Add(ttl)
	} else {
		st.blockedUntil = time.Time{}
	}
	return nil
}

func (m *Memory) IsBlocked(_ context.Context, ip string) (bool, error) {
	sh := m.shardFor(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.state[ip]
	if !ok || !st.blocked {
		return false, nil
	}
	if !st.blockedUntil.IsZero() && m.now().After(st.blockedUntil) {
		st.blocked = false
		st.blockedUntil = time.Time{}
		return false, nil
	}
	return true, nil
}

// Prune drops state for IPs with no recent activity and no active block.
// Run periodically from a janitor goroutine to bound memory on long uptimes.
func (m *Memory) Prune(maxAge time.Duration) int {
	now := m.now()
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for ip, st := range sh.state {
			st.requests = prune(st.requests, now, maxAge)
			st.failures = prune(st.failures, now, maxAge)
			if st.blocked && !st.blockedUntil.IsZero() && now.After(st.blockedUntil) {
				st.blocked = false
			}
			if len(st.requests) == 0 && len(st.failures) == 0 && !st.blocked {
				delete(sh.state, ip)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (sh *shard) getOrCreate(ip string) *ipState {
	st, ok := sh.state[ip]
	if !ok {
		st = &ipState{}
		sh.state[ip] = st
	}
	return st
}

func appendAndPrune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	ts = prune(ts, now, window)
	return append(ts, now)
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
