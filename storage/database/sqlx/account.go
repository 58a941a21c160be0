package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/identity"
)

type accountRow struct {
	UID          string    `db:"uid"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r accountRow) account() identity.Account {
	return identity.Account{
		UID:          r.UID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: []byte(r.PasswordHash),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type accountRepository struct {
	store
}

var _ identity.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) identity.Repository {
	return &accountRepository{store{db: db}}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc identity.Account) (identity.Account, error) {
	row := accountRow{
		UID:          acc.UID,
		Email:        acc.Email,
		Name:         acc.Name,
		PasswordHash: string(acc.PasswordHash),
		CreatedAt:    acc.CreatedAt,
		UpdatedAt:    acc.UpdatedAt,
	}
	q := `
		INSERT INTO accounts (uid, email, name, password_hash, created_at, updated_at)
		VALUES (:uid, :email, :name, :password_hash, :created_at, :updated_at)
		ON CONFLICT (email) DO NOTHING`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return identity.Account{}, errors.Wrap(err, "inserting account")
	}
	if n, err := res.RowsAffected(); err != nil {
		return identity.Account{}, errors.Wrap(err, "inserting account")
	} else if n == 0 {
		return identity.Account{}, identity.ErrEmailExists
	}
	return acc, nil
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string) (identity.Account, error) {
	var row accountRow
	q := repo.db.Rebind(`SELECT uid, email, name, password_hash, created_at, updated_at FROM accounts WHERE email = ?`)
	if err := repo.db.GetContext(ctx, &row, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Account{}, identity.ErrNotFound
		}
		return identity.Account{}, errors.Wrap(err, "selecting account")
	}
	return row.account(), nil
}

func (repo *accountRepository) UpdateAccountPassword(ctx context.Context, uid string, hash []byte, updatedAt time.Time) error {
	q := repo.db.Rebind(`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE uid = ?`)
	res, err := repo.db.ExecContext(ctx, q, string(hash), updatedAt, uid)
	if err != nil {
		return errors.Wrap(err, "updating account password")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating account password")
	} else if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
