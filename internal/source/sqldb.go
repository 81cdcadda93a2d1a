package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the catalog queries and placeholder style of a SQL source.
type Dialect int

// Supported SQL dialects.
const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// OpenSQL opens a read-only connection. postgres:// and postgresql:// URLs use
// pgx with read-only transactions; anything else is a SQLite file (optionally
// prefixed sqlite:// or file:) opened with mode=ro.
func OpenSQL(ctx context.Context, conn string) (*sql.DB, Dialect, error) {
	var (
		db      *sql.DB
		dialect Dialect
	)
	switch {
	case strings.HasPrefix(conn, "postgres://"), strings.HasPrefix(conn, "postgresql://"):
		cfg, err := pgx.ParseConfig(conn)
		if err != nil {
			return nil, 0, errors.Wrap(err, "parsing postgres connection string")
		}
		if cfg.RuntimeParams == nil {
			cfg.RuntimeParams = map[string]string{}
		}
		cfg.RuntimeParams["default_transaction_read_only"] = "on"
		db, dialect = stdlib.OpenDB(*cfg), DialectPostgres
	default:
		var err error
		db, err = sql.Open("sqlite", sqliteReadOnlyDSN(conn))
		if err != nil {
			return nil, 0, errors.Wrap(err, "opening sqlite source")
		}
		dialect = DialectSQLite
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, 0, errors.Wrapf(err, "connecting to %s source", dialect)
	}
	return db, dialect, nil
}

func sqliteReadOnlyDSN(conn string) string {
	dsn := strings.TrimPrefix(conn, "sqlite://")
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&mode=ro"
	}
	return dsn + "?mode=ro"
}

// Cell is one non-null value read from a table row or document field.
type Cell struct {
	Container string // table or collection
	Field     string // column or dotted field path
	Row       int    // 1-based row or document number
	Value     string
}

// Label is the provenance string "container.field".
func (c Cell) Label() string {
	return c.Container + "." + c.Field
}

// SQLSampler reads at most SampleN rows from each table.
type SQLSampler struct {
	DB      *sql.DB
	Dialect Dialect
	SampleN int
}

// Tables lists the user tables of the database in name order.
func (s *SQLSampler) Tables(ctx context.Context) ([]string, error) {
	q := `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	if s.Dialect == DialectPostgres {
		q = `SELECT table_name FROM information_schema.tables
		     WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		     ORDER BY table_name`
	}
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scanning table name")
		}
		tables = append(tables, name)
	}
	return tables, errors.Wrap(rows.Err(), "iterating tables")
}

// Sample reads up to SampleN rows of table and calls emit for every non-null
// value.
func (s *SQLSampler) Sample(ctx context.Context, table string, emit func(Cell)) error {
	placeholder := "?"
	if s.Dialect == DialectPostgres {
		placeholder = "$1"
	}
	rows, err := s.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT %s", quoteIdent(table), placeholder),
		s.SampleN,
	)
	if err != nil {
		return errors.Wrapf(err, "sampling %s", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errors.Wrapf(err, "reading columns of %s", table)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	row := 0
	for rows.Next() {
		row++
		if err := rows.Scan(ptrs...); err != nil {
			return errors.Wrapf(err, "scanning row %d of %s", row, table)
		}
		for i, v := range vals {
			text, ok := stringify(v)
			if !ok {
				continue
			}
			emit(Cell{Container: table, Field: cols[i], Row: row, Value: text})
		}
	}
	return errors.Wrapf(rows.Err(), "iterating %s", table)
}

// quoteIdent quotes a table name for both SQLite and Postgres.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// stringify renders a scalar column or field value. Nil reports false.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return Decode(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}
