package clickhouse

import (
	"net"
	"strconv"
	"time"
)

// InsertMode selects how the server acknowledges INSERTs.
type InsertMode int

const (
	// InsertSync waits for the part to be written.
	InsertSync InsertMode = iota
	// InsertAsync buffers server side and acknowledges immediately.
	InsertAsync
	// InsertAsyncWait buffers server side and acknowledges after the flush.
	InsertAsyncWait
)

// ParseInsertMode maps the async_insert/wait_for_async_insert pair to a mode.
func ParseInsertMode(async, wait bool) InsertMode {
	switch {
	case async && wait:
		return InsertAsyncWait
	case async:
		return InsertAsync
	default:
		return InsertSync
	}
}

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds ClickHouse connection settings.
type ClientConfig struct {
	Addr     string
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration
	Insert      InsertMode
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Addr:            "localhost:9000",
		Database:        "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
}

// WithAddr sets the server address. An empty host leaves the default.
func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		if host != "" {
			c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
		}
	}
}

// WithDatabase selects the database and the account used to reach it.
func WithDatabase(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
		c.User = user
		c.Password = password
	}
}

func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
	}
}

// WithTimeouts sets the dial and read timeouts and the server side
// max_execution_time. Zero values are left out of the DSN.
func WithTimeouts(dial, read, exec time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout = dial
		c.ReadTimeout = read
		c.MaxExecTime = exec
	}
}

// WithHTTP uses the HTTP protocol instead of native TCP.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

func WithInsertMode(m InsertMode) ClientOption {
	return func(c *ClientConfig) { c.Insert = m }
}
