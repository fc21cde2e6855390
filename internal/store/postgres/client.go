// Package postgres implements the domain store interfaces on
// PostgreSQL/TimescaleDB via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/polycollect/internal/domain"
)

// connectAttempts bounds the internal retry loop when the pool cannot be
// established; persistent failure is fatal to the daemon.
const connectAttempts = 3

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN                 string
	MinConns            int
	MaxConns            int
	CommandTimeout      time.Duration
	MaxInactiveLifetime time.Duration
}

// Client wraps a pgxpool.Pool with an explicit closed flag so that a closed
// client fails acquisitions with a distinguishable error instead of probing
// driver internals.
type Client struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	closed bool
}

// New creates a new Client with a connection pool configured from cfg.
// Connection establishment is retried a bounded number of times with
// jittered backoff before giving up.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxInactiveLifetime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxInactiveLifetime
	}
	if cfg.CommandTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.CommandTimeout.Milliseconds(), 10)
	}

	// Prefer IPv4 when possible, but gracefully handle IPv6-only endpoints.
	poolCfg.ConnConfig.DialFunc = dialPreferIPv4

	var pool *pgxpool.Pool
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			backoff += time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("postgres: connect: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		pool, lastErr = pgxpool.NewWithConfig(ctx, poolCfg)
		if lastErr != nil {
			continue
		}
		if lastErr = pool.Ping(ctx); lastErr != nil {
			pool.Close()
			pool = nil
			continue
		}
		break
	}
	if pool == nil {
		return nil, fmt.Errorf("postgres: connect after %d attempts: %w", connectAttempts, lastErr)
	}

	return &Client{pool: pool}, nil
}

// dialPreferIPv4 dials IPv4 addresses first and falls back to the system
// resolver for dual-stack or IPv6-only targets.
func dialPreferIPv4(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("postgres: split host/port %q: %w", addr, err)
	}

	dialer := &net.Dialer{}

	// If pgx already passed an IP literal, dial with the matching family.
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
		}
		return dialer.DialContext(ctx, "tcp6", net.JoinHostPort(ip.String(), port))
	}

	ipv4s, err4 := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	for _, ip := range ipv4s {
		conn, dialErr := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
		if dialErr == nil {
			return conn, nil
		}
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err == nil {
		return conn, nil
	}

	if err4 != nil {
		return nil, fmt.Errorf("postgres: dial %q failed (ipv4 lookup=%v, fallback=%w)", addr, err4, err)
	}
	return nil, fmt.Errorf("postgres: dial %q failed: %w", addr, errors.Join(err4, err))
}

// Acquire checks out a connection from the pool. It fails with
// domain.ErrPoolClosed after Close has been called.
func (c *Client) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.ErrPoolClosed
	}
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire: %w", err)
	}
	return conn, nil
}

// Pool returns the underlying connection pool for the store types in this
// package. Callers outside the package should go through the stores.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close shuts down the connection pool. It is idempotent; subsequent
// Acquire calls fail with domain.ErrPoolClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	// pgxpool waits for checked-out connections to be released.
	c.pool.Close()
}
