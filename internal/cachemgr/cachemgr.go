// Package cachemgr implements the Cache Manager (C7): a pair-key → Engine
// Pool map with idle eviction and keep-alive, guaranteeing at-most-one
// concurrent pool build per pair via golang.org/x/sync/singleflight — the
// same pattern pitabwire-frame and traylinx-switchAILocal pull in for
// serializing expensive, shareable constructions behind a cache.
package cachemgr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nmtcore/transengine/internal/enginepool"
)

// Entry is the EngineCacheEntry of spec.md §3.
type Entry struct {
	Pair     string
	Pool     *enginepool.Pool
	lastUsed atomic.Int64
	useCount atomic.Int64
}

// Builder constructs a new Pool for pair on a cache miss.
type Builder func(ctx context.Context, pair string) (*enginepool.Pool, error)

// Manager is the Cache Manager.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	build Builder
	group singleflight.Group

	idleTimeout           time.Duration
	memoryCheckInterval   time.Duration
	timeoutResetThreshold time.Duration

	sweeping  bool
	sweepStop chan struct{}

	logger *log.Entry
}

// Config carries the subset of translate.Config the sweeper needs.
type Config struct {
	IdleTimeout           time.Duration
	MemoryCheckInterval   time.Duration
	TimeoutResetThreshold time.Duration
}

// New builds a Manager. build is invoked at most once concurrently per
// pair, even under a stampede of GetOrCreate calls for the same pair.
func New(build Builder, cfg Config) *Manager {
	return &Manager{
		entries:               make(map[string]*Entry),
		build:                 build,
		idleTimeout:           cfg.IdleTimeout,
		memoryCheckInterval:   cfg.MemoryCheckInterval,
		timeoutResetThreshold: cfg.TimeoutResetThreshold,
		logger:                log.WithField("component", "cachemgr"),
	}
}

// Get returns the existing entry for pair, refreshing its idle deadline, or
// nil if no entry exists.
func (m *Manager) Get(pair string) *Entry {
	m.mu.RLock()
	e, ok := m.entries[pair]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	m.KeepAlive(pair)
	return e
}

// GetOrCreate returns the existing entry for pair, or builds one. Builds
// for the same pair are serialized: concurrent callers for the same pair
// block on a single in-flight build and all receive the same Entry.
func (m *Manager) GetOrCreate(ctx context.Context, pair string) (*Entry, error) {
	m.mu.RLock()
	if e, ok := m.entries[pair]; ok {
		m.mu.RUnlock()
		m.KeepAlive(pair)
		return e, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.group.Do(pair, func() (any, error) {
		m.mu.RLock()
		if e, ok := m.entries[pair]; ok {
			m.mu.RUnlock()
			return e, nil
		}
		m.mu.RUnlock()

		pool, err := m.build(ctx, pair)
		if err != nil {
			return nil, err
		}

		e := &Entry{Pair: pair, Pool: pool}
		e.touch()

		m.mu.Lock()
		m.entries[pair] = e
		first := len(m.entries) == 1
		m.mu.Unlock()

		if first {
			m.startSweeper()
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// KeepAlive bumps lastUsed, rate-limited per spec.md §4.6: if the deadline
// was rearmed less than TIMEOUT_RESET_THRESHOLD ago, this call is a no-op
// beyond recording the touch, avoiding churn under high request rates.
func (m *Manager) KeepAlive(pair string) {
	m.mu.RLock()
	e, ok := m.entries[pair]
	m.mu.RUnlock()
	if !ok {
		return
	}
	e.useCount.Add(1)
	now := time.Now().UnixNano()
	last := e.lastUsed.Load()
	if m.timeoutResetThreshold <= 0 || time.Duration(now-last) >= m.timeoutResetThreshold {
		e.lastUsed.Store(now)
	}
}

// Remove cancels the deadline, terminates every worker in the pool, and
// deletes the entry. If the map becomes empty the sweeper is stopped.
func (m *Manager) Remove(pair string) {
	m.mu.Lock()
	e, ok := m.entries[pair]
	if ok {
		delete(m.entries, pair)
	}
	empty := len(m.entries) == 0
	m.mu.Unlock()

	if !ok {
		return
	}
	e.Pool.Terminate()

	if empty {
		m.stopSweeper()
	}
}

// Shutdown terminates every pool and stops the sweeper. Safe to call more
// than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.Pool.Terminate()
	}
	m.stopSweeper()
}

func (e *Entry) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

// startSweeper is idempotent: GetOrCreate calls it whenever an insert leaves
// the map with exactly one entry, but only the first call while idleTimeout
// is positive (and no sweeper is running) actually starts a
// sweepLoop goroutine. m.sweeping (not sync.Once) guards that, so the
// start/stop pair shares m.mu and stopSweeper can safely re-arm it for the
// next sweeper without racing a concurrent startSweeper.
func (m *Manager) startSweeper() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweeping || m.idleTimeout <= 0 {
		return
	}
	m.sweeping = true
	m.sweepStop = make(chan struct{})
	go m.sweepLoop()
}

func (m *Manager) stopSweeper() {
	m.mu.Lock()
	stop := m.sweepStop
	m.sweepStop = nil
	m.sweeping = false
	m.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (m *Manager) sweepLoop() {
	interval := m.memoryCheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.mu.Lock()
	stop := m.sweepStop
	m.mu.Unlock()

	for {
		select {
		case <-ticker.C:
			m.sweepOnce2()
		case <-stop:
			return
		}
	}
}

func (m *Manager) sweepOnce2() {
	now := time.Now().UnixNano()

	m.mu.RLock()
	victims := make([]string, 0)
	for pair, e := range m.entries {
		if time.Duration(now-e.lastUsed.Load()) >= m.idleTimeout {
			victims = append(victims, pair)
		}
	}
	m.mu.RUnlock()

	for _, pair := range victims {
		m.logger.WithField("pair", pair).Info("evicting idle engine pool")
		m.Remove(pair)
	}
}
