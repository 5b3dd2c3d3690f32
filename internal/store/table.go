package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// entity describes how one table maps onto T. Stores compose an entity
// instead of sharing a base type.
type entity[T any] struct {
	table   string
	columns []string
	scan    func(row pgx.Row) (*T, error)
}

func (e entity[T]) selectFrom() string {
	return "SELECT " + strings.Join(e.columns, ", ") + " FROM " + e.table
}

func (e entity[T]) returning() string {
	return " RETURNING " + strings.Join(e.columns, ", ")
}

// one runs a single-row query built from tail (WHERE/ORDER/LOCK clauses).
func (e entity[T]) one(ctx context.Context, db DBTX, op, tail string, args ...any) (*T, error) {
	v, err := e.scan(db.QueryRow(ctx, e.selectFrom()+" "+tail, args...))
	if err != nil {
		return nil, classify(op, err)
	}
	return v, nil
}

func (e entity[T]) many(ctx context.Context, db DBTX, op, tail string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, e.selectFrom()+" "+tail, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		v, err := e.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Page is a normalized limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Paginate clamps limit to [1, MaxPageLimit] and offset to >= 0.
func Paginate(limit, offset int) Page {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// paginated runs a stable, ordered page query over any entity. where uses
// placeholders $1..$n for args; the window is appended as $n+1, $n+2.
func paginated[T any](ctx context.Context, db DBTX, e entity[T], op, where, orderBy string, page Page, args ...any) ([]*T, error) {
	page = Paginate(page.Limit, page.Offset)
	n := len(args)
	tail := fmt.Sprintf("WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d", where, orderBy, n+1, n+2)
	return e.many(ctx, db, op, tail, append(args, page.Limit, page.Offset)...)
}
