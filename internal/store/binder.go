// ABOUTME: Dialect-aware SQL parameter placeholder generation
// ABOUTME: $N for postgres, @pN for sqlserver, ? for everything else

package store

import "strconv"

// Dialect identifies the placeholder syntax a database driver expects.
type Dialect int

const (
	// DialectQuestion uses a single repeated `?` marker.
	DialectQuestion Dialect = iota
	// DialectPositional uses positional `$1, $2, ...` markers.
	DialectPositional
	// DialectNamed uses named `@p1, @p2, ...` markers.
	DialectNamed
)

// DialectFor maps a database/sql driver name to its placeholder dialect.
func DialectFor(driverName string) Dialect {
	switch driverName {
	case "postgres", "pgx":
		return DialectPositional
	case "sqlserver", "mssql":
		return DialectNamed
	default:
		return DialectQuestion
	}
}

// Binder generates the placeholder token for each bound parameter of one
// query. The counter is 1-based and only ever increases; create a fresh
// Binder per query build.
type Binder struct {
	dialect Dialect
	next    int
}

// NewBinder creates a Binder for the given dialect.
func NewBinder(dialect Dialect) *Binder {
	return &Binder{dialect: dialect, next: 1}
}

// Next returns the placeholder for the next parameter and advances the
// counter.
func (b *Binder) Next() string {
	id := b.next
	b.next++

	switch b.dialect {
	case DialectPositional:
		return "$" + strconv.Itoa(id)
	case DialectNamed:
		return "@p" + strconv.Itoa(id)
	default:
		return "?"
	}
}
