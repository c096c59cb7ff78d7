// Package db stores a local journal of attendance events in DuckDB and exports it to Parquet.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver registration
)

const databaseFile = "attendance.db"

// Client owns the DuckDB database of one journal directory. Parquet exports are
// written next to the database file.
type Client struct {
	db  *sql.DB
	dir string
}

// NewClient opens (creating if needed) the journal database inside dir.
func NewClient(dir string) (*Client, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat journal directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	db, err := sql.Open("duckdb", filepath.Join(dir, databaseFile)+"?threads=2")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	// DuckDB allows a single writer per file.
	db.SetMaxOpenConns(1)

	return &Client{db: db, dir: dir}, nil
}

// Start checks the database file can be opened.
func (c *Client) Start(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return nil
}

// Stop closes the database.
func (c *Client) Stop() error {
	return c.db.Close()
}

func (c *Client) Conn() *sql.DB {
	return c.db
}

// Dir is the directory holding the database and its exports.
func (c *Client) Dir() string {
	return c.dir
}

// WriteParquet copies the rows of query into filename inside the journal directory,
// replacing any earlier export of the same name, and returns the file path.
func (c *Client) WriteParquet(ctx context.Context, query, filename string) (string, error) {
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("export name %q must not contain a directory", filename)
	}
	outPath := filepath.Join(c.dir, filename)
	stmt := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT 'parquet', COMPRESSION 'zstd')",
		query, strings.ReplaceAll(outPath, "'", "''"))
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to write parquet file %s: %w", filename, err)
	}
	return outPath, nil
}
