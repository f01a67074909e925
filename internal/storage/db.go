package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"brickcat/internal"
	"brickcat/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNoFields      = errors.New("no valid fields")
)

type DB struct {
	conn   *sqlx.DB
	driver string
}

func Open(cfg config.Config) (*DB, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		return openPostgres(dsn)
	default:
		return OpenSQLite(cfg.DBPath)
	}
}

func OpenSQLite(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, driver: config.DriverSQLite}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(dsn string) (*DB, error) {
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	conn.SetMaxOpenConns(defaultMaxOpenConns)
	conn.SetMaxIdleConns(defaultMaxIdleConns)
	conn.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, driver: config.DriverPostgres}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

func (d *DB) init() error {
	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.driver == config.DriverPostgres {
		idColumn = "id SERIAL PRIMARY KEY"
	}

	schema := `
CREATE TABLE IF NOT EXISTS lego (
  ` + idColumn + `,
  lego TEXT,
  pieza TEXT,
  nombre TEXT,
  color TEXT,
  cantidad INTEGER,
  ubicacion TEXT
);
CREATE INDEX IF NOT EXISTS idx_lego_lego ON lego(lego);
CREATE INDEX IF NOT EXISTS idx_lego_pieza ON lego(pieza);
`
	_, err := d.conn.Exec(schema)
	return err
}

// Columns lists the lego table columns in ordinal order.
func (d *DB) Columns(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM pragma_table_info('lego') ORDER BY cid`
	if d.driver == config.DriverPostgres {
		query = `SELECT column_name FROM information_schema.columns WHERE table_name = 'lego' ORDER BY ordinal_position`
	}

	var columns []string
	if err := d.conn.SelectContext(ctx, &columns, query); err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return columns, nil
}

// Options returns the distinct values of column containing value, case-insensitively.
func (d *DB) Options(ctx context.Context, column, value string) ([]any, error) {
	col, err := d.column(ctx, column)
	if err != nil {
		return nil, err
	}

	like := "LIKE"
	if d.driver == config.DriverPostgres {
		like = "ILIKE"
	}
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM lego WHERE CAST(%s AS TEXT) %s ? ORDER BY %s`, col, col, like, col)

	rows, err := d.conn.QueryxContext(ctx, d.conn.Rebind(query), "%"+value+"%")
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, normalizeValue(v))
	}
	return out, rows.Err()
}

// Search returns one page of rows whose column equals value, ordered by id.
func (d *DB) Search(ctx context.Context, column, value string, limit, offset int) ([]internal.Row, error) {
	col, err := d.column(ctx, column)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM lego WHERE %s = ? ORDER BY id LIMIT ? OFFSET ?`, col)
	rows, err := d.conn.QueryxContext(ctx, d.conn.Rebind(query), value, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return scanRows(rows)
}

func (d *DB) Count(ctx context.Context, column, value string) (int, error) {
	col, err := d.column(ctx, column)
	if err != nil {
		return 0, err
	}

	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM lego WHERE %s = ?`, col)
	if err := d.conn.GetContext(ctx, &total, d.conn.Rebind(query), value); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return total, nil
}

// Insert stores the non-empty fields as a new row and returns it.
func (d *DB) Insert(ctx context.Context, fields internal.Row) (internal.Row, error) {
	names, values, err := d.validFields(ctx, fields)
	if err != nil {
		return nil, err
	}

	cols := make([]string, len(names))
	placeholders := make([]string, len(names))
	for i, name := range names {
		cols[i] = quoteIdent(name)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(`INSERT INTO lego (%s) VALUES (%s) RETURNING *`,
		strings.Join(cols, ","), strings.Join(placeholders, ","))

	rows, err := d.conn.QueryxContext(ctx, d.conn.Rebind(query), values...)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return firstRow(rows)
}

// Update overwrites the non-empty fields of the row with the given id.
func (d *DB) Update(ctx context.Context, id any, fields internal.Row) (internal.Row, error) {
	rest := make(internal.Row, len(fields))
	for k, v := range fields {
		if k != "id" {
			rest[k] = v
		}
	}
	names, values, err := d.validFields(ctx, rest)
	if err != nil {
		return nil, err
	}

	set := make([]string, len(names))
	for i, name := range names {
		set[i] = quoteIdent(name) + " = ?"
	}
	values = append(values, bindValue(id))
	query := fmt.Sprintf(`UPDATE lego SET %s WHERE id = ? RETURNING *`, strings.Join(set, ", "))

	rows, err := d.conn.QueryxContext(ctx, d.conn.Rebind(query), values...)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return firstRow(rows)
}

func (d *DB) Delete(ctx context.Context, id any) error {
	res, err := d.conn.ExecContext(ctx, d.conn.Rebind(`DELETE FROM lego WHERE id = ?`), bindValue(id))
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// column resolves a caller-supplied column name against the real table
// columns and returns it quoted.
func (d *DB) column(ctx context.Context, name string) (string, error) {
	columns, err := d.Columns(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range columns {
		if c == name {
			return quoteIdent(c), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownColumn, name)
}

// validFields drops nil and empty-string values and checks the remaining
// names. Names come back sorted so statements are deterministic.
func (d *DB) validFields(ctx context.Context, fields internal.Row) ([]string, []any, error) {
	columns, err := d.Columns(ctx)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		if _, ok := known[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil, ErrNoFields
	}
	sort.Strings(names)

	values := make([]any, len(names))
	for i, name := range names {
		values[i] = bindValue(fields[name])
	}
	return names, values, nil
}

// bindValue keeps whole JSON numbers integral. A float bound into a TEXT
// column is stored as "10221.0", which breaks key matching.
func bindValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return v
	default:
		return v
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func scanRows(rows *sqlx.Rows) ([]internal.Row, error) {
	defer rows.Close()

	out := []internal.Row{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			row[k] = normalizeValue(v)
		}
		out = append(out, internal.Row(row))
	}
	return out, rows.Err()
}

func firstRow(rows *sqlx.Rows) (internal.Row, error) {
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

// normalizeValue turns driver text bytes into strings so rows encode as JSON text.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case sql.RawBytes:
		return string(t)
	default:
		return v
	}
}
