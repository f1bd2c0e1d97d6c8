/*
Package session provides scoped, bounded database session acquisition.

PURPOSE:
  Owns the database connection pool and grants scoped sessions to callers.
  A Session is owned exclusively by the caller for one logical operation
  and is released on every exit path (success, error, panic, cancellation).
  The package contains no tenant logic.

ACQUISITION CONTRACT:
  Acquire is a single synchronous step: it either yields a ready-to-use,
  health-checked session or fails. There is no two-step "get handle, then
  await readiness" split, and no handle that still needs an asynchronous
  setup before first use.

BOUNDED WAITING:
  The pool has a bounded maximum size. A caller never waits longer than
  the configured connect timeout for capacity; exhaustion surfaces as
  ErrPoolExhausted instead of blocking indefinitely. A pool that cannot
  reach the database surfaces the dial/ping failure - it never hands out
  a disconnected or no-op session.

SEE ALSO:
  - revenue/service.go: wraps these failures into the caller-facing taxonomy
  - store/sqlite: issues aggregation queries through a Session
*/
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrPoolExhausted is returned when no session slot frees up within
	// the connect timeout.
	ErrPoolExhausted = errors.New("session pool exhausted")

	// ErrPoolClosed is returned after Close.
	ErrPoolClosed = errors.New("session pool closed")
)

// ExhaustedError carries the pool bound that was hit.
type ExhaustedError struct {
	MaxSize int
	Waited  time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("session pool exhausted: %d sessions in use after waiting %s", e.MaxSize, e.Waited)
}

func (e *ExhaustedError) Unwrap() error { return ErrPoolExhausted }

// =============================================================================
// SESSION - Scoped handle, released exactly once
// =============================================================================

// Conn is the database surface a session exposes. *sql.Conn satisfies it.
type Conn interface {
	PingContext(ctx context.Context) error
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Session is a scoped handle to one database connection. It is ready for
// use the moment Acquire returns it. Release is idempotent.
type Session struct {
	conn    Conn
	release func()
	once    sync.Once
}

// NewSession wraps a connection with a release hook. Exported so tests can
// substitute fake connections; production sessions come from Pool.Acquire.
func NewSession(conn Conn, release func()) *Session {
	return &Session{conn: conn, release: release}
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

// Release returns the underlying connection to the pool. Safe to call more
// than once; only the first call has effect.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// =============================================================================
// POOL - Bounded acquisition over database/sql
// =============================================================================

// Options configures a Pool.
type Options struct {
	// MaxSize bounds concurrently held sessions. Minimum 1.
	MaxSize int

	// ConnectTimeout caps the whole Acquire step: waiting for a slot,
	// checking out the connection, and the health check.
	ConnectTimeout time.Duration

	// HealthCheck pings the connection before handing it out. A session
	// is never returned in an unusable state.
	HealthCheck bool
}

const (
	DefaultMaxSize        = 10
	DefaultConnectTimeout = 5 * time.Second
)

// Pool grants scoped sessions over a *sql.DB.
type Pool struct {
	db             *sql.DB
	slots          chan struct{}
	connectTimeout time.Duration
	healthCheck    bool

	mu     sync.Mutex
	closed bool
}

// NewPool wraps db with bounded session acquisition. The underlying
// database/sql pool is clamped to the same bound so the two never disagree.
func NewPool(db *sql.DB, opts Options) *Pool {
	if opts.MaxSize < 1 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	db.SetMaxOpenConns(opts.MaxSize)
	return &Pool{
		db:             db,
		slots:          make(chan struct{}, opts.MaxSize),
		connectTimeout: opts.ConnectTimeout,
		healthCheck:    opts.HealthCheck,
	}
}

// MaxSize returns the configured bound.
func (p *Pool) MaxSize() int { return cap(p.slots) }

// InUse returns the number of currently held sessions.
func (p *Pool) InUse() int { return len(p.slots) }

// Acquire yields a ready-to-use session or fails within the connect
// timeout. It never blocks without bound and never returns a handle that
// needs further setup.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	started := time.Now()
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &ExhaustedError{MaxSize: cap(p.slots), Waited: time.Since(started)}
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		<-p.slots
		return nil, fmt.Errorf("checkout connection: %w", err)
	}

	if p.healthCheck {
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			<-p.slots
			return nil, fmt.Errorf("health check: %w", err)
		}
	}

	return NewSession(conn, func() {
		_ = conn.Close()
		<-p.slots
	}), nil
}

// WithSession runs fn with an acquired session and guarantees release on
// success, error, and panic.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) error {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()
	return fn(sess)
}

// Close marks the pool closed. Held sessions stay valid until released;
// the owning store closes the *sql.DB.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
