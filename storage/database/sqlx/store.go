// Package sqlxrepos stores the app documents in a SQL database (postgres or sqlite3) through sqlx.
// Each document is kept as JSON next to the few columns it is queried by.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/storage/database"
)

type store struct {
	db *sqlx.DB
}

// forUpdate locks the selected rows until the end of the transaction.
// sqlite has no row locks: its single connection already serializes transactions.
func (s store) forUpdate() string {
	if s.db.DriverName() == database.Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s store) runInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return database.RunInTx(ctx, s.db, fn)
}

func getDoc(ctx context.Context, q sqlx.QueryerContext, dest interface{}, notFound error, query string, args ...interface{}) error {
	var doc string
	if err := sqlx.GetContext(ctx, q, &doc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}
		return errors.Wrap(err, "selecting document")
	}
	return errors.Wrap(json.Unmarshal([]byte(doc), dest), "decoding document")
}

func encodeDoc(v interface{}) (string, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encoding document")
	}
	return string(doc), nil
}
