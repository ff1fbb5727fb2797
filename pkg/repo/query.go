package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx.Tx the repositories need. Both pgx.Tx and
// *pgxpool.Pool satisfy it, so read paths can run outside an explicit
// transaction.
type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Join concatenates non-empty SQL fragments with single spaces.
func Join(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return strings.Join(filtered, " ")
}

// JoinWhere renders a WHERE clause AND-ing the given conditions. Returns an
// empty string when there are none.
func JoinWhere(conditions ...string) string {
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// OrClause renders a parenthesized OR-disjunction of the given conditions.
func OrClause(conditions ...string) string {
	if len(conditions) == 0 {
		return ""
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return "(" + strings.Join(conditions, " OR ") + ")"
}

// Insert builds an INSERT statement with positional placeholders. When
// returning is non-empty a RETURNING clause is appended.
func Insert(table string, fields []string, returning ...string) string {
	placeholders := make([]string, len(fields))
	for i := range fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(fields, ", "),
		strings.Join(placeholders, ", "),
	)
	if len(returning) > 0 {
		q += " RETURNING " + strings.Join(returning, ", ")
	}
	return q
}

// Update builds an UPDATE statement assigning fields to consecutive
// placeholders. The caller supplies the WHERE condition with placeholders
// numbered after the field placeholders.
func Update(table string, fields []string, where string) string {
	assignments := make([]string, len(fields))
	for i, f := range fields {
		assignments[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(assignments, ", "))
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// Exists wraps a base SELECT into an EXISTS projection.
func Exists(base string) string {
	return fmt.Sprintf("SELECT EXISTS (%s)", base)
}

// BatchInsertQueryN expands a multi-row VALUES tail onto baseQuery and
// flattens the row values into a single positional argument slice.
func BatchInsertQueryN(baseQuery string, rows [][]any) (string, []any) {
	if len(rows) == 0 {
		return baseQuery, nil
	}
	width := len(rows[0])
	tuples := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*width)
	n := 1
	for _, row := range rows {
		placeholders := make([]string, len(row))
		for i, v := range row {
			placeholders[i] = fmt.Sprintf("$%d", n)
			args = append(args, v)
			n++
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
	}
	return baseQuery + " " + strings.Join(tuples, ", "), args
}

// FormatLimitOffset renders LIMIT/OFFSET, omitting non-positive parts.
func FormatLimitOffset(limit, offset int) string {
	if limit > 0 && offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	if limit > 0 {
		return fmt.Sprintf("LIMIT %d", limit)
	}
	if offset > 0 {
		return fmt.Sprintf("OFFSET %d", offset)
	}
	return ""
}
