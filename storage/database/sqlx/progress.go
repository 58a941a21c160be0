package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/progress"
	"github.com/triolingo/backend/core/roulette"
	"github.com/triolingo/backend/core/user"
)

type progressRepository struct {
	store
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *sqlx.DB) progress.Repository {
	return &progressRepository{store{db: db}}
}

func (repo *progressRepository) GetProgress(ctx context.Context, uid, id string) (progress.Record, error) {
	return getProgress(ctx, repo.db, repo.db, uid, id, "")
}

func (repo *progressRepository) QueryProgress(ctx context.Context, uid string, filter progress.QueryFilter) ([]progress.Record, error) {
	var sb strings.Builder
	args := []interface{}{uid}
	sb.WriteString("SELECT doc FROM progress WHERE uid = ?")
	if filter.Language != "" {
		sb.WriteString(" AND language = ?")
		args = append(args, filter.Language)
	}
	if filter.RecentFirst {
		sb.WriteString(" ORDER BY last_updated DESC, id ASC")
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var docs []string
	if err := repo.db.SelectContext(ctx, &docs, repo.db.Rebind(sb.String()), args...); err != nil {
		return nil, errors.Wrap(err, "selecting progress")
	}

	recs := make([]progress.Record, 0, len(docs))
	for _, doc := range docs {
		var rec progress.Record
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, errors.Wrap(err, "decoding progress")
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (repo *progressRepository) RunInTransaction(ctx context.Context, fn func(tx progress.Tx) error) error {
	return repo.runInTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&transaction{tx: tx, db: repo.db, lock: repo.forUpdate()})
	})
}

func getProgress(ctx context.Context, q sqlx.QueryerContext, binder *sqlx.DB, uid, id, lock string) (progress.Record, error) {
	var rec progress.Record
	err := getDoc(ctx, q, &rec, progress.ErrNotFound, binder.Rebind("SELECT doc FROM progress WHERE uid = ? AND id = ?"+lock), uid, id)
	return rec, err
}

func (t *transaction) GetProgress(ctx context.Context, uid, id string) (progress.Record, error) {
	return getProgress(ctx, t.tx, t.db, uid, id, t.lock)
}

func (t *transaction) SaveProgress(ctx context.Context, uid string, rec progress.Record) error {
	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}
	q := t.tx.Rebind(`
		INSERT INTO progress (uid, id, language, last_updated, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (uid, id) DO UPDATE
		SET language = excluded.language, last_updated = excluded.last_updated, doc = excluded.doc`)
	_, err = t.tx.ExecContext(ctx, q, uid, rec.ID, rec.Language, rec.LastUpdated.UnixNano(), doc)
	return errors.Wrap(err, "upserting progress")
}

type rouletteRepository struct {
	store
}

var _ roulette.Repository = (*rouletteRepository)(nil)

func NewRouletteRepository(db *sqlx.DB) roulette.Repository {
	return &rouletteRepository{store{db: db}}
}

func (repo *rouletteRepository) RunInTransaction(ctx context.Context, fn func(tx user.Tx) error) error {
	return repo.runInTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&transaction{tx: tx, db: repo.db, lock: repo.forUpdate()})
	})
}
