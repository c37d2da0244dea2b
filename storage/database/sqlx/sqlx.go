// Package sqlxrepos implements the domain repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/oasis-elearning/oasis/core"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pqErrorCode returns the SQLSTATE code and the constraint name of a postgres error.
func pqErrorCode(err error) (code, constraint string) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

func isUniqueViolation(err error, constraint string) bool {
	code, cons := pqErrorCode(err)
	return code == pqUniqueViolation && cons == constraint
}

func isForeignKeyViolation(err error) bool {
	code, _ := pqErrorCode(err)
	return code == pqForeignKeyViolation
}

func toJSON(v interface{}) (types.JSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return types.JSONText(b), nil
}

func fromJSON(j types.JSONText, v interface{}) error {
	if len(j) == 0 {
		return nil
	}
	return j.Unmarshal(v)
}

func orderBy(b sq.SelectBuilder, ordering []core.DBOrdering, defaultOrder string) sq.SelectBuilder {
	if len(ordering) == 0 {
		return b.OrderBy(defaultOrder)
	}
	for _, ord := range ordering {
		b = b.OrderBy(ord.String())
	}
	return b
}

func paginate(b sq.SelectBuilder, page core.Page) sq.SelectBuilder {
	if page.Limit <= 0 {
		return b
	}
	return b.Limit(uint64(page.Limit)).Offset(uint64(page.Offset()))
}

func count(ctx context.Context, exec core.DBExecutor, b sq.SelectBuilder) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err = exec.GetContext(ctx, &total, query, args...); err != nil {
		return 0, err
	}
	return total, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	return n, nil
}
