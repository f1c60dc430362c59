package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dialect selects placeholder syntax and driver for the SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d Dialect) driver() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// SQL is a Backend over one relational table per logical table. Every
// attribute is a TEXT column; pagination is keyset on the table key.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// Query runs one keyset page with the filter pushed into the WHERE clause.
func (s *SQL) Query(ctx context.Context, table Table, filter Filter, cursor string, limit int) (Page, error) {
	if err := filter.validate(table); err != nil {
		return Page{}, err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var (
		clauses []string
		args    []any
	)
	arg := func(v string) string {
		args = append(args, v)
		return s.dialect.placeholder(len(args))
	}

	keys := make([]string, 0, len(filter.Equals))
	for k := range filter.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		clauses = append(clauses, k+" = "+arg(filter.Equals[k]))
	}
	if r := filter.Range; r != nil {
		clauses = append(clauses, r.Attr+" <> ''")
		if r.From != "" {
			clauses = append(clauses, r.Attr+" >= "+arg(r.From))
		}
		if r.To != "" {
			clauses = append(clauses, r.Attr+" <= "+arg(r.To))
		}
	}
	if cursor != "" {
		clauses = append(clauses, table.Key+" > "+arg(cursor))
	}

	query := "SELECT " + strings.Join(table.Attributes, ", ") + " FROM " + table.Name
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY " + table.Key + " LIMIT " + s.dialect.placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		vals := make([]string, len(table.Attributes))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return Page{}, err
		}
		it := make(Item, len(vals))
		for i, a := range table.Attributes {
			it[a] = vals[i]
		}
		page.Items = append(page.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	if len(page.Items) == limit {
		page.Next = page.Items[len(page.Items)-1][table.Key]
	}
	return page, nil
}

// Put upserts one row keyed on the table key.
func (s *SQL) Put(ctx context.Context, table Table, item Item) error {
	cols := table.Attributes
	holders := make([]string, len(cols))
	args := make([]any, len(cols))
	var updates []string
	for i, c := range cols {
		holders[i] = s.dialect.placeholder(i + 1)
		args[i] = item[c]
		if c != table.Key {
			updates = append(updates, c+" = excluded."+c)
		}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table.Name, strings.Join(cols, ", "), strings.Join(holders, ", "), table.Key, strings.Join(updates, ", "),
	)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// indexed lists attributes that get a secondary index when present.
var indexed = []string{"date", "badge_id", "person_id"}

// Migrate creates the tables and their secondary indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, t := range Tables {
		cols := make([]string, len(t.Attributes))
		for i, a := range t.Attributes {
			cols[i] = a + " TEXT NOT NULL DEFAULT ''"
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))", t.Name, strings.Join(cols, ", "), t.Key)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", t.Name, err)
		}
		for _, a := range indexed {
			if a == t.Key || !t.Has(a) {
				continue
			}
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", t.Name, a, t.Name, a)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s index %s: %w", t.Name, a, err)
			}
		}
	}
	return nil
}
