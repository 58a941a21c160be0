package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/user"
)

type userRepository struct {
	store
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{store{db: db}}
}

func (repo *userRepository) GetUser(ctx context.Context, uid string) (user.User, error) {
	return getUser(ctx, repo.db, repo.db, uid, "")
}

func (repo *userRepository) CreateUserIfNotExists(ctx context.Context, usr user.User) (user.User, bool, error) {
	doc, err := encodeDoc(usr)
	if err != nil {
		return user.User{}, false, err
	}

	q := repo.db.Rebind(`INSERT INTO users (uid, points, is_online, doc) VALUES (?, ?, ?, ?) ON CONFLICT (uid) DO NOTHING`)
	res, err := repo.db.ExecContext(ctx, q, usr.UID, usr.Points, usr.IsOnline, doc)
	if err != nil {
		return user.User{}, false, errors.Wrap(err, "inserting user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, false, errors.Wrap(err, "inserting user")
	} else if n == 1 {
		return usr, true, nil
	}

	stored, err := repo.GetUser(ctx, usr.UID)
	return stored, false, err
}

func (repo *userRepository) UpdateProfile(ctx context.Context, uid string, pu user.ProfileUpdate) (user.User, error) {
	var usr user.User
	err := repo.runInTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if usr, err = getUser(ctx, tx, repo.db, uid, repo.forUpdate()); err != nil {
			return err
		}
		pu.Apply(&usr)
		return putUser(ctx, tx, usr)
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString("SELECT doc FROM users")
	if filter.OnlineOnly {
		sb.WriteString(" WHERE is_online = ?")
		args = append(args, true)
	}
	if filter.OrderByPoints {
		sb.WriteString(" ORDER BY points DESC, uid ASC")
	} else {
		sb.WriteString(" ORDER BY uid ASC")
	}
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var docs []string
	if err := repo.db.SelectContext(ctx, &docs, repo.db.Rebind(sb.String()), args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}

	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		var usr user.User
		if err := json.Unmarshal([]byte(doc), &usr); err != nil {
			return nil, errors.Wrap(err, "decoding user")
		}
		users = append(users, usr)
	}
	return users, nil
}

func getUser(ctx context.Context, q sqlx.QueryerContext, binder *sqlx.DB, uid, lock string) (user.User, error) {
	var usr user.User
	err := getDoc(ctx, q, &usr, user.ErrNotFound, binder.Rebind("SELECT doc FROM users WHERE uid = ?"+lock), uid)
	return usr, err
}

func putUser(ctx context.Context, tx *sqlx.Tx, usr user.User) error {
	doc, err := encodeDoc(usr)
	if err != nil {
		return err
	}
	q := tx.Rebind(`UPDATE users SET points = ?, is_online = ?, doc = ? WHERE uid = ?`)
	res, err := tx.ExecContext(ctx, q, usr.Points, usr.IsOnline, doc, usr.UID)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

// transaction implements progress.Tx and user.Tx over a SQL transaction.
type transaction struct {
	tx   *sqlx.Tx
	db   *sqlx.DB
	lock string
}

func (t *transaction) GetUser(ctx context.Context, uid string) (user.User, error) {
	return getUser(ctx, t.tx, t.db, uid, t.lock)
}

func (t *transaction) UpdateUserScore(ctx context.Context, uid string, points int, stats user.Stats, updatedAt time.Time) error {
	usr, err := t.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	usr.Points = points
	usr.Stats = stats
	usr.UpdatedAt = updatedAt
	return putUser(ctx, t.tx, usr)
}
