// Package sqlxrepos implements the repositories on top of sqlx. Queries are written with "?"
// placeholders and rebound to the driver, so the same code serves postgres and sqlite.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/matokeo/core"
)

// where accumulates ANDed conditions.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(clause string, args ...interface{}) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// in adds "column IN (...)". An empty, non-nil list matches nothing.
func (w *where) in(column string, values []string) error {
	if values == nil {
		return nil
	}
	if len(values) == 0 {
		w.add("1 = 0")
		return nil
	}
	clause, args, err := sqlx.In(column+" IN (?)", values)
	if err != nil {
		return errors.Wrap(err, "expanding IN clause")
	}
	w.add(clause, args...)
	return nil
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// orderBy renders orderings already filtered against the allowed columns.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	parts = append(parts, fallback)
	return " ORDER BY " + strings.Join(parts, ", ")
}

func likeContains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// withTx runs fn in a transaction, rolled back when fn fails.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}
