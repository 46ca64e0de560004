package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dm/twemcheck/internal/stats"
)

const (
	// DefaultPort is the twemproxy default stats port.
	DefaultPort = 22222

	// DefaultTimeout bounds the dial and the read when no timeout is
	// configured. The stats port answers in milliseconds when healthy.
	DefaultTimeout = 5 * time.Second

	// maxPayloadBytes caps the stats document read. Even very large
	// deployments stay far below this.
	maxPayloadBytes = 8 * 1024 * 1024
)

// StatsSource produces the current counter snapshot of the monitored proxy.
type StatsSource interface {
	Fetch(ctx context.Context) (stats.Snapshot, error)
}

// Config holds connection settings for the stats port.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client reads the stats document twemproxy serves on its stats port:
// connect over TCP, receive one JSON object, connection close ends the
// document.
type Client struct {
	cfg Config
	log *zap.Logger
}

// New validates cfg and returns a Client. Port and Timeout fall back to
// DefaultPort and DefaultTimeout when unset.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, log: cfg.Logger}, nil
}

// Addr returns the host:port the client fetches from.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Fetch dials the stats port and decodes the returned document. The
// configured timeout bounds the dial and the full read.
func (c *Client) Fetch(ctx context.Context) (stats.Snapshot, error) {
	addr := c.Addr()
	start := time.Now()

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial stats port %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	body, err := io.ReadAll(io.LimitReader(conn, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read stats from %s: %w", addr, err)
	}

	snap, err := stats.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("stats from %s: %w", addr, err)
	}

	c.log.Debug("fetched stats",
		zap.String("addr", addr),
		zap.Int("bytes", len(body)),
		zap.Int("clusters", len(snap)),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}
