package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client wraps the ClickHouse connection.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

// ClickHouse setting keys
const (
	maxExecutionTime = "max_execution_time"
	maxBlockSize     = "max_block_size"
)

const defaultPingTimeout = 10 * time.Second

var ErrNoHosts = errors.New("clickhouse: at least one host is required")

type client struct {
	conn driver.Conn
	log  *zap.SugaredLogger
}

// Options translates cfg into driver options.
func Options(cfg Config, log *zap.SugaredLogger) (*clickhouse.Options, error) {
	if len(cfg.Hosts) == 0 {
		return nil, ErrNoHosts
	}
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			maxExecutionTime: cfg.MaxExecutionTime,
			maxBlockSize:     cfg.MaxBlockSize,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      time.Duration(cfg.DialTimeout) * time.Second,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: cfg.ClientName, Version: cfg.ClientVersion},
			},
		},
	}
	if cfg.TLS {
		opts.TLS = &tls.Config{
			//nolint:gosec // configurable for development clusters with self-signed certificates
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
	}
	if cfg.Debug && log != nil {
		opts.Debug = true
		opts.Debugf = func(format string, v ...any) {
			log.Debugf(format, v...)
		}
	}
	return opts, nil
}

// New opens a connection and pings the server. A failed ping closes the connection.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Client, error) {
	opts, err := Options(cfg, log)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			log.Errorw("clickhouse rejected ping", "code", exception.Code, "message", exception.Message)
		}
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse %v: %w", cfg.Hosts, err)
	}
	return NewWithConn(conn, log), nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn driver.Conn, log *zap.SugaredLogger) Client {
	return &client{conn: conn, log: log}
}

func (c *client) Conn() driver.Conn {
	return c.conn
}

func (c *client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *client) Close() error {
	return c.conn.Close()
}
