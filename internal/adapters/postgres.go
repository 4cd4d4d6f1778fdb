// ABOUTME: postgres adapter: runs SQL over database/sql with the pgx stdlib driver
// ABOUTME: Row-returning statements yield row maps; everything else reports affected rows

package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// TypePostgres is the registry type id of the Postgres adapter.
const TypePostgres = "postgres"

// DefaultMaxRows caps result sets when a request sets no MaxResults.
const DefaultMaxRows = 1000

// PostgresConfig is decoded from the adapter config map. DSN wins over the
// individual connection fields.
type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	SSLMode        string `mapstructure:"sslmode"`
	MinConnections int    `mapstructure:"min_connections"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// ConnString returns the DSN, building a postgres:// URL from fields if needed.
func (c PostgresConfig) ConnString() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: missing required parameter(s): %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String(), nil
}

// PostgresAdapter queries a Postgres database.
type PostgresAdapter struct {
	mu       sync.RWMutex
	db       *sql.DB
	injected bool
}

// NewPostgresAdapter is the postgres factory.
func NewPostgresAdapter() Adapter {
	return &PostgresAdapter{}
}

// NewPostgresAdapterWithDB wraps an existing pool. Initialize skips opening a
// connection when one was supplied.
func NewPostgresAdapterWithDB(db *sql.DB) *PostgresAdapter {
	return &PostgresAdapter{db: db, injected: true}
}

func (a *PostgresAdapter) Initialize(ctx context.Context, config map[string]any) error {
	var cfg PostgresConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.injected {
		applyPoolLimits(a.db, cfg)
		return nil
	}

	dsn, err := cfg.ConnString()
	if err != nil {
		return err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	applyPoolLimits(db, cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.db = db
	return nil
}

func applyPoolLimits(db *sql.DB, cfg PostgresConfig) {
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MinConnections > 0 {
		db.SetMaxIdleConns(cfg.MinConnections)
	}
}

func (a *PostgresAdapter) Metadata(ctx context.Context) Metadata {
	return Metadata{
		Name:                   "PostgreSQL Adapter",
		Version:                "1.0.0",
		Description:            "Runs SQL against a PostgreSQL database",
		Capabilities:           []Capability{CapabilityRead, CapabilityWrite, CapabilitySearch},
		SchemaSupported:        true,
		AuthenticationRequired: true,
	}
}

// ReturnsRows reports whether a SQL statement produces a result set.
func ReturnsRows(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "select", "with", "show", "values", "table", "explain":
		return true
	}
	return false
}

// queryArgs pulls positional arguments from Parameters["args"].
func queryArgs(params map[string]any) []any {
	switch v := params["args"].(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

func (a *PostgresAdapter) Execute(ctx context.Context, req DataRequest) (*DataResponse, error) {
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()
	if db == nil {
		return nil, ErrNotInitialized
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("empty query")
	}
	args := queryArgs(req.Parameters)

	if !ReturnsRows(query) {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("executing statement: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("reading affected rows: %w", err)
		}
		return &DataResponse{
			Data:       map[string]any{"affected_rows": affected},
			Metadata:   map[string]any{},
			StatusCode: 200,
		}, nil
	}

	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultMaxRows
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(result) == limit {
			truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return &DataResponse{
		Data: result,
		Metadata: map[string]any{
			"row_count": len(result),
			"columns":   cols,
			"truncated": truncated,
		},
		StatusCode: 200,
	}, nil
}

func (a *PostgresAdapter) HealthCheck(ctx context.Context) bool {
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()
	if db == nil {
		return false
	}
	return db.PingContext(ctx) == nil
}

func (a *PostgresAdapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

var _ Adapter = (*PostgresAdapter)(nil)
