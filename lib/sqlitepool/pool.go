// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/sqlsession/lib/sqlerr"
)

// Pool owns the primary and secondary connections of one database.
// Pool is safe for concurrent use; the connections it hands out are
// not.
type Pool struct {
	mu sync.Mutex

	config Config
	limit  int
	closed bool

	// generation is bumped whenever a reconfiguration invalidates open
	// connections. Connections from an older generation are closed on
	// release.
	generation uint64
	nextID     int64

	// primary is nil until opened (and after a failed reopen or a
	// release under a newer generation); it is reopened on demand.
	primary         *Connection
	primaryAcquired bool

	idle     []*Connection
	acquired map[*Connection]struct{}

	waiters []*waiter
}

// waiter is a blocked Acquire. ready is closed once conn or err is set.
type waiter struct {
	label       string
	flags       ConnectionFlags
	wantPrimary bool
	started     time.Time
	ready       chan struct{}
	conn        *Connection
	err         error
}

func (w *waiter) result() (*Connection, error) {
	if w.err != nil {
		return nil, fmt.Errorf("sqlitepool: acquire %q: %w", w.label, w.err)
	}
	return w.conn, nil
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	PrimaryOpen             bool
	PrimaryAcquired         bool
	IdleSecondaries         int
	AcquiredSecondaries     int
	MaxSecondaryConnections int
	Waiters                 int
	Generation              uint64
}

// Open validates cfg, opens the primary connection, and returns the
// pool. A database that cannot be opened with the requested flags
// yields a *sqlerr.OpenError.
func Open(cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()

	pool := &Pool{
		config:   cfg,
		limit:    cfg.secondaryLimit(),
		acquired: make(map[*Connection]struct{}),
	}

	primary, err := pool.openLocked(true)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: %w", err)
	}
	pool.primary = primary

	cfg.Logger.Info("sqlite pool opened",
		"label", cfg.Label,
		"flags", cfg.Flags.String(),
		"max_secondary_connections", pool.limit,
	)
	return pool, nil
}

// Config returns a copy of the current configuration with defaults
// applied.
func (p *Pool) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// Stats returns the current connection counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	return Stats{
		PrimaryOpen:             p.primary != nil,
		PrimaryAcquired:         p.primaryAcquired,
		IdleSecondaries:         len(p.idle),
		AcquiredSecondaries:     len(p.acquired),
		MaxSecondaryConnections: p.limit,
		Waiters:                 len(p.waiters),
		Generation:              p.generation,
	}
}

// Acquire returns a connection suited to flags, blocking until one is
// free. label names the caller in busy warnings. The caller must pass
// the connection to Release when done.
//
// FlagPrimaryConnectionAffinity always yields the primary. Otherwise an
// idle or newly opened secondary is returned; when the pool allows no
// secondaries the primary serves every request.
func (p *Pool) Acquire(ctx context.Context, label string, flags ConnectionFlags) (*Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sqlitepool: acquire %q: %w", label, sqlerr.Cancelled(err))
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("sqlitepool: acquire %q: %w", label, sqlerr.ErrClosed)
	}
	current := &waiter{
		label:       label,
		flags:       flags,
		wantPrimary: flags.wantsPrimary(),
		started:     p.config.Clock.Now(),
		ready:       make(chan struct{}),
	}
	p.enqueueLocked(current)
	p.wakeWaitersLocked()
	clock := p.config.Clock
	interval := p.config.BusyLogInterval
	p.mu.Unlock()

	select {
	case <-current.ready:
		return current.result()
	default:
	}

	var busy <-chan time.Time
	if interval > 0 {
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		busy = ticker.C
	}

	for {
		select {
		case <-current.ready:
			return current.result()

		case <-ctx.Done():
			return nil, p.abandon(current, ctx.Err())

		case <-busy:
			p.logBusy(current)
		}
	}
}

// abandon removes a cancelled waiter. A connection handed to it in the
// meantime goes back to the pool.
func (p *Pool) abandon(current *waiter, cause error) error {
	err := fmt.Errorf("sqlitepool: acquire %q: %w", current.label, sqlerr.Cancelled(cause))

	p.mu.Lock()
	select {
	case <-current.ready:
		p.mu.Unlock()
		if current.conn != nil {
			if releaseErr := p.Release(current.conn); releaseErr != nil {
				return errors.Join(err, releaseErr)
			}
		}
		return err
	default:
	}
	p.waiters = slices.DeleteFunc(p.waiters, func(w *waiter) bool { return w == current })
	p.wakeWaitersLocked()
	p.mu.Unlock()
	return err
}

func (p *Pool) logBusy(current *waiter) {
	p.mu.Lock()
	stats := p.statsLocked()
	logger := p.config.Logger
	label := p.config.Label
	waited := p.config.Clock.Now().Sub(current.started)
	p.mu.Unlock()

	logger.Warn("sqlite pool busy",
		"label", label,
		"caller", current.label,
		"primary", current.wantPrimary,
		"interactive", current.flags.interactive(),
		"waited", waited,
		"primary_acquired", stats.PrimaryAcquired,
		"acquired_secondaries", stats.AcquiredSecondaries,
		"waiters", stats.Waiters,
	)
}

// enqueueLocked appends w, placing interactive waiters after the last
// interactive waiter and ahead of every non-interactive one.
func (p *Pool) enqueueLocked(w *waiter) {
	if !w.flags.interactive() {
		p.waiters = append(p.waiters, w)
		return
	}
	position := len(p.waiters)
	for i, queued := range p.waiters {
		if !queued.flags.interactive() {
			position = i
			break
		}
	}
	p.waiters = slices.Insert(p.waiters, position, w)
}

// wakeWaitersLocked hands free connections to queued waiters in queue
// order. Once one waiter for a kind of connection cannot be served,
// later waiters for the same kind are skipped so they cannot overtake
// it.
func (p *Pool) wakeWaitersLocked() {
	primaryBusy := false
	secondaryBusy := false
	remaining := p.waiters[:0]
	for _, w := range p.waiters {
		usesPrimary := w.wantPrimary || p.limit == 0
		if (usesPrimary && primaryBusy) || (!usesPrimary && secondaryBusy) {
			remaining = append(remaining, w)
			continue
		}

		var conn *Connection
		var err error
		if usesPrimary {
			conn, err = p.tryAcquirePrimaryLocked()
			primaryBusy = conn == nil && err == nil
		} else {
			conn, err = p.tryAcquireSecondaryLocked()
			secondaryBusy = conn == nil && err == nil
		}
		if conn == nil && err == nil {
			remaining = append(remaining, w)
			continue
		}
		w.conn, w.err = conn, err
		close(w.ready)
	}
	clear(p.waiters[len(remaining):])
	p.waiters = remaining
}

func (p *Pool) tryAcquirePrimaryLocked() (*Connection, error) {
	if p.primaryAcquired {
		return nil, nil
	}
	if p.primary == nil {
		primary, err := p.openLocked(true)
		if err != nil {
			return nil, err
		}
		p.primary = primary
	}
	p.primaryAcquired = true
	return p.primary, nil
}

func (p *Pool) tryAcquireSecondaryLocked() (*Connection, error) {
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.acquired[conn] = struct{}{}
		return conn, nil
	}
	if len(p.acquired) >= p.limit {
		return nil, nil
	}
	conn, err := p.openLocked(false)
	if err != nil {
		return nil, err
	}
	p.acquired[conn] = struct{}{}
	return conn, nil
}

// openLocked opens a connection under the current configuration and
// generation, running OnConnect.
func (p *Pool) openLocked(primary bool) (*Connection, error) {
	readOnly := p.config.Flags.ReadOnly()
	if !primary {
		readOnly = p.config.secondariesReadOnly()
	}
	engine, err := openConnection(p.config, primary, readOnly)
	if err != nil {
		return nil, err
	}

	conn := &Connection{
		pool:       p,
		conn:       engine,
		id:         p.nextID,
		label:      p.config.Label,
		primary:    primary,
		readOnly:   readOnly,
		generation: p.generation,
		settings:   p.config.settings(),
	}
	p.nextID++

	if p.config.OnConnect != nil {
		if err := p.config.OnConnect(conn); err != nil {
			engine.Close()
			return nil, fmt.Errorf("OnConnect for %s: %w", conn, err)
		}
	}
	return conn, nil
}

// Release returns conn to the pool. It fails with sqlerr.ErrInvalidState
// if conn does not belong to this pool or is not checked out.
// Settings changed by Reconfigure while conn was out are applied.
// Connections from an older generation, connections beyond the current
// limit, and connections released after Close are closed.
func (p *Pool) Release(conn *Connection) error {
	if conn == nil {
		return fmt.Errorf("sqlitepool: release: %w", sqlerr.Invalid("nil connection"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn.pool != p {
		return fmt.Errorf("sqlitepool: release %s: %w", conn, sqlerr.Invalid("connection belongs to another pool"))
	}

	if conn.primary {
		if conn != p.primary || !p.primaryAcquired {
			return fmt.Errorf("sqlitepool: release %s: %w", conn, sqlerr.Invalid("connection is not checked out"))
		}
	} else if _, ok := p.acquired[conn]; !ok {
		return fmt.Errorf("sqlitepool: release %s: %w", conn, sqlerr.Invalid("connection is not checked out"))
	}

	discard := p.closed || conn.generation != p.generation
	if !discard {
		// Settings changed by Reconfigure while the connection was out.
		if err := conn.applySettings(p.config); err != nil {
			p.config.Logger.Warn("sqlite connection settings not applied",
				"connection", conn.String(),
				"error", err,
			)
			// A temporary primary holds the only copy of its database.
			discard = !conn.primary || !IsTemporary(p.config.Path)
		}
	}
	if conn.primary {
		p.primaryAcquired = false
		if discard {
			p.primary = nil
		}
	} else {
		delete(p.acquired, conn)
		if !discard && len(p.idle)+len(p.acquired) >= p.limit {
			discard = true
		}
		if !discard {
			p.idle = append(p.idle, conn)
		}
	}

	if discard {
		p.closeConnectionLocked(conn)
	}
	if !p.closed {
		p.wakeWaitersLocked()
	}
	return nil
}

// ShouldYieldConnection reports whether a queued caller with at least
// the priority implied by flags is waiting for the kind of connection
// conn is. Sessions use it to decide whether to yield a long
// transaction.
func (p *Pool) ShouldYieldConnection(conn *Connection, flags ConnectionFlags) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || conn == nil || conn.pool != p {
		return false
	}
	for _, w := range p.waiters {
		if flags.interactive() && !w.flags.interactive() {
			continue
		}
		usesPrimary := w.wantPrimary || p.limit == 0
		if usesPrimary == conn.primary {
			return true
		}
	}
	return false
}

// Reconfigure applies cfg to the open pool. The path cannot change.
// BusyTimeout and ForeignKeys are applied in place: at once to idle
// connections, and on release to checked-out ones. Other flag changes
// reopen the connections, which a temporary database does not allow
// since its contents live only in its primary. Write-ahead logging can
// only be toggled while no connection is checked out. If the primary
// must be reopened and that fails, the pool keeps its previous
// configuration.
func (p *Pool) Reconfigure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("sqlitepool: reconfigure: %w", sqlerr.ErrClosed)
	}
	if cfg.Logger == nil {
		cfg.Logger = p.config.Logger
	}
	if cfg.Clock == nil {
		cfg.Clock = p.config.Clock
	}
	next := cfg.withDefaults()
	previous := p.config

	if next.Path != previous.Path {
		return fmt.Errorf("sqlitepool: reconfigure: %w",
			sqlerr.Invalid("cannot change path from %q to %q", previous.Path, next.Path))
	}
	reopen := previous.needsReopen(next)
	if reopen && IsTemporary(next.Path) {
		return fmt.Errorf("sqlitepool: reconfigure: %w",
			sqlerr.Invalid("cannot change flags of temporary database from %s to %s", previous.Flags, next.Flags))
	}
	walChanged := next.Flags.WAL() != previous.Flags.WAL()
	if walChanged {
		if inUse := len(p.acquired) + boolCount(p.primaryAcquired); inUse > 0 {
			return fmt.Errorf("sqlitepool: reconfigure: %w",
				sqlerr.Invalid("cannot change write-ahead logging with %d connections checked out", inUse))
		}
	}

	if reopen {
		if walChanged {
			// Changing the journal mode needs the database to itself.
			p.closeIdleSecondariesLocked()
			if p.primary != nil {
				p.closeConnectionLocked(p.primary)
				p.primary = nil
			}
		}

		p.config = next
		p.generation++
		if !p.primaryAcquired {
			primary, err := p.openLocked(true)
			if err != nil {
				p.config = previous
				p.generation--
				next.Logger.Error("sqlite pool reconfigure failed",
					"label", previous.Label,
					"flags", next.Flags.String(),
					"error", err,
				)
				return fmt.Errorf("sqlitepool: reconfigure: %w", err)
			}
			if p.primary != nil {
				p.closeConnectionLocked(p.primary)
			}
			p.primary = primary
		}
		p.closeIdleSecondariesLocked()
	} else {
		if p.primary != nil && !p.primaryAcquired {
			if err := p.primary.applySettings(next); err != nil {
				return fmt.Errorf("sqlitepool: reconfigure: %w", err)
			}
		}
		p.config = next
		idle := p.idle[:0]
		for _, conn := range p.idle {
			if err := conn.applySettings(next); err != nil {
				next.Logger.Warn("sqlite connection settings not applied",
					"connection", conn.String(),
					"error", err,
				)
				p.closeConnectionLocked(conn)
				continue
			}
			idle = append(idle, conn)
		}
		p.idle = idle
	}

	p.limit = next.secondaryLimit()
	for len(p.idle) > 0 && len(p.idle)+len(p.acquired) > p.limit {
		p.closeConnectionLocked(p.idle[len(p.idle)-1])
		p.idle = p.idle[:len(p.idle)-1]
	}

	next.Logger.Info("sqlite pool reconfigured",
		"label", next.Label,
		"flags", next.Flags.String(),
		"max_secondary_connections", p.limit,
		"generation", p.generation,
	)
	p.wakeWaitersLocked()
	return nil
}

// Close closes idle connections and fails every blocked Acquire with
// sqlerr.ErrClosed. Checked-out connections are closed when released.
// Later Acquire calls fail with sqlerr.ErrClosed. Closing twice is a
// no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, conn := range p.idle {
		if err := conn.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(p.idle)
	p.idle = nil
	if p.primary != nil && !p.primaryAcquired {
		if err := p.primary.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		p.primary = nil
	}

	for _, w := range p.waiters {
		w.err = sqlerr.ErrClosed
		close(w.ready)
	}
	clear(p.waiters)
	p.waiters = nil

	if err := errors.Join(errs...); err != nil {
		p.config.Logger.Error("sqlite pool close error",
			"label", p.config.Label,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.config.Label, err)
	}
	p.config.Logger.Info("sqlite pool closed",
		"label", p.config.Label,
		"checked_out", len(p.acquired)+boolCount(p.primaryAcquired),
	)
	return nil
}

func (p *Pool) closeIdleSecondariesLocked() {
	for _, conn := range p.idle {
		p.closeConnectionLocked(conn)
	}
	clear(p.idle)
	p.idle = p.idle[:0]
}

func (p *Pool) closeConnectionLocked(conn *Connection) {
	if err := conn.conn.Close(); err != nil {
		p.config.Logger.Error("sqlite connection close error",
			"connection", conn.String(),
			"error", err,
		)
	}
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
