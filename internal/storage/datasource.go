package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"chartbot/internal/models"
	"chartbot/internal/tabular"
)

// DataSourceConfig holds connection details
type DataSourceConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require"
}

// DSN renders the lib/pq connection string.
func (c DataSourceConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslMode)
}

// DataSource is a database that can hand out tables as datasets.
type DataSource interface {
	ListTables(ctx context.Context) ([]string, error)
	LoadDataset(ctx context.Context, table string, limit int) (*models.Dataset, error)
	Close() error
}

// PostgresDataSource implements DataSource for PostgreSQL
type PostgresDataSource struct {
	db *sql.DB
}

// ConnectPostgres opens and pings a Postgres database.
func ConnectPostgres(ctx context.Context, cfg DataSourceConfig) (*PostgresDataSource, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDataSource{db: db}, nil
}

// Close closes the pool.
func (p *PostgresDataSource) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// ListTables lists the tables of the public schema.
func (p *PostgresDataSource) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// LoadDataset reads up to limit rows of table. The table must be one of
// ListTables; its first column becomes the row key.
func (p *PostgresDataSource) LoadDataset(ctx context.Context, table string, limit int) (*models.Dataset, error) {
	tables, err := p.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	if !contains(tables, table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if limit <= 0 {
		limit = 1000
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", pq.QuoteIdentifier(table), limit)
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows, len(columns))
	if err != nil {
		return nil, err
	}
	return tabular.FromRecords(table, append([][]string{columns}, records...))
}

func scanRecords(rows *sql.Rows, width int) ([][]string, error) {
	var records [][]string
	for rows.Next() {
		values := make([]interface{}, width)
		ptrs := make([]interface{}, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make([]string, width)
		for i, v := range values {
			record[i] = cellString(v)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// cellString renders a scanned SQL value as dataset text.
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
