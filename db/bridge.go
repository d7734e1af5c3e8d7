// Package db bridges the engine to external relational databases. The CLI
// uses it to replay dump files into MySQL or PostgreSQL targets so dumps
// can be verified against a reference implementation.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config represents a bridge connection configuration
type Config struct {
	Driver           string        // mysql or postgres
	Host             string        // Database host
	Port             int           // Database port
	Database         string        // Database name
	Username         string        // Login user
	Password         string        // Login password
	ConnectionString string        // Custom connection string (optional)
	MaxOpenConns     int           // Maximum number of open connections
	MaxIdleConns     int           // Maximum number of idle connections
	ConnMaxLifetime  time.Duration // Maximum lifetime of a connection
	RetryAttempts    int           // Number of connection retry attempts
	RetryDelay       time.Duration // Delay between retry attempts
	Timeout          time.Duration // Connection timeout
	SSLMode          string        // SSL mode for postgres targets
}

func (c *Config) normalize() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// buildConnectionString renders the driver specific DSN
func buildConnectionString(config Config) string {
	switch config.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			config.Username, config.Password, config.Host, config.Port, config.Database)
	case "postgres":
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.Username, config.Password, config.Database, sslMode)
	}
	return config.ConnectionString
}

// Bridge manages the external database connections by name
type Bridge struct {
	mu          sync.RWMutex
	configs     map[string]Config
	connections map[string]*sql.DB
}

// NewBridge creates an empty bridge
func NewBridge() *Bridge {
	return &Bridge{
		configs:     make(map[string]Config),
		connections: make(map[string]*sql.DB),
	}
}

// RegisterConnection registers a target configuration
func (b *Bridge) RegisterConnection(name string, config Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.configs[name]; exists {
		return fmt.Errorf("connection %s already registered", name)
	}
	config.normalize()
	b.configs[name] = config
	return nil
}

// GetConnection returns an open connection, dialing with retries on first
// use or after a failed ping
func (b *Bridge) GetConnection(name string) (*sql.DB, error) {
	b.mu.RLock()
	conn, exists := b.connections[name]
	b.mu.RUnlock()
	if exists {
		if err := conn.Ping(); err == nil {
			return conn, nil
		}
	}
	return b.connectWithRetry(name)
}

func (b *Bridge) connectWithRetry(name string) (*sql.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	config, exists := b.configs[name]
	if !exists {
		return nil, fmt.Errorf("connection %s not registered", name)
	}
	var db *sql.DB
	var err error
	for attempt := 1; attempt <= config.RetryAttempts; attempt++ {
		db, err = b.connect(config)
		if err == nil {
			break
		}
		if attempt < config.RetryAttempts {
			time.Sleep(config.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to establish connection after %d attempts: %w", config.RetryAttempts, err)
	}
	b.connections[name] = db
	return db, nil
}

func (b *Bridge) connect(config Config) (*sql.DB, error) {
	connStr := config.ConnectionString
	if connStr == "" {
		connStr = buildConnectionString(config)
	}
	db, err := sql.Open(config.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close closes every open connection
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, conn := range b.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.connections, name)
	}
	return firstErr
}

// placeholder renders the driver's parameter marker
func placeholder(driver string, n int) string {
	if driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ReplayRows inserts rows into the target table, one INSERT per row inside
// a single transaction
func (b *Bridge) ReplayRows(name, table string, columns []string, rows [][]any) (int, error) {
	b.mu.RLock()
	config := b.configs[name]
	b.mu.RUnlock()
	conn, err := b.GetConnection(name)
	if err != nil {
		return 0, err
	}
	marks := make([]string, len(columns))
	for i := range marks {
		marks[i] = placeholder(config.Driver, i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(marks, ", "))

	tx, err := conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	inserted := 0
	for _, row := range rows {
		if _, err := tx.Exec(query, row...); err != nil {
			_ = tx.Rollback()
			return inserted, fmt.Errorf("failed to insert row: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

// VerifyTable checks the target table exposes at least the given columns,
// using information_schema on both drivers
func (b *Bridge) VerifyTable(name, table string, columns []string) error {
	b.mu.RLock()
	config := b.configs[name]
	b.mu.RUnlock()
	conn, err := b.GetConnection(name)
	if err != nil {
		return err
	}
	rows, err := conn.Query(
		"SELECT column_name FROM information_schema.columns WHERE table_name = "+placeholder(config.Driver, 1), table)
	if err != nil {
		return fmt.Errorf("failed to read table schema: %w", err)
	}
	defer rows.Close()
	found := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		found[strings.ToLower(col)] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, col := range columns {
		if !found[strings.ToLower(col)] {
			return fmt.Errorf("table %s is missing column %s", table, col)
		}
	}
	return nil
}
