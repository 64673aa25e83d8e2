package store

import (
	"errors"
	"testing"
)

func TestNewDialect(t *testing.T) {
	if _, ok := NewDialect(DialectSQLite).(*SQLiteDialect); !ok {
		t.Error("NewDialect(DialectSQLite) did not return a SQLiteDialect")
	}
	if _, ok := NewDialect(DialectPostgres).(*PostgresDialect); !ok {
		t.Error("NewDialect(DialectPostgres) did not return a PostgresDialect")
	}
	// Unknown types fall back to SQLite
	if _, ok := NewDialect("unknown").(*SQLiteDialect); !ok {
		t.Error("NewDialect(unknown) did not fall back to SQLiteDialect")
	}
}

func TestSQLiteDialect(t *testing.T) {
	d := &SQLiteDialect{}

	if got := d.DriverName(); got != "sqlite" {
		t.Errorf("DriverName() = %q, want %q", got, "sqlite")
	}
	if got := d.Placeholder(3); got != "?" {
		t.Errorf("Placeholder(3) = %q, want %q", got, "?")
	}
	if len(d.InitStatements()) == 0 {
		t.Error("InitStatements() returned no PRAGMA statements")
	}
}

func TestPostgresDialect(t *testing.T) {
	d := &PostgresDialect{}

	if got := d.DriverName(); got != "postgres" {
		t.Errorf("DriverName() = %q, want %q", got, "postgres")
	}
	if got := d.Placeholder(1); got != "$1" {
		t.Errorf("Placeholder(1) = %q, want %q", got, "$1")
	}
	if got := d.Placeholder(7); got != "$7" {
		t.Errorf("Placeholder(7) = %q, want %q", got, "$7")
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	sqlite := &SQLiteDialect{}
	postgres := &PostgresDialect{}

	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"sqlite nil", sqlite, nil, false},
		{"sqlite unique", sqlite, errors.New("UNIQUE constraint failed: runs.id"), true},
		{"sqlite other", sqlite, errors.New("no such table"), false},
		{"postgres nil", postgres, nil, false},
		{"postgres duplicate key", postgres, errors.New(`pq: duplicate key value violates unique constraint "runs_pkey"`), true},
		{"postgres code", postgres, errors.New("SQLSTATE 23505"), true},
		{"postgres other", postgres, errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.IsDuplicateKeyError(tt.err); got != tt.want {
				t.Errorf("IsDuplicateKeyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestQueryBuilderSQLite(t *testing.T) {
	qb := NewQueryBuilder(&SQLiteDialect{})

	query := "SELECT * FROM runs WHERE id = ? AND shape = ?"
	if got := qb.Build(query); got != query {
		t.Errorf("Build() = %q, want the query unchanged", got)
	}
}

func TestQueryBuilderPostgres(t *testing.T) {
	qb := NewQueryBuilder(&PostgresDialect{})

	tests := []struct {
		input string
		want  string
	}{
		{
			"SELECT * FROM runs WHERE id = ?",
			"SELECT * FROM runs WHERE id = $1",
		},
		{
			"INSERT INTO runs (id, shape) VALUES (?, ?)",
			"INSERT INTO runs (id, shape) VALUES ($1, $2)",
		},
		{
			"SELECT COUNT(*) FROM runs",
			"SELECT COUNT(*) FROM runs",
		},
	}

	for _, tt := range tests {
		if got := qb.Build(tt.input); got != tt.want {
			t.Errorf("Build(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
