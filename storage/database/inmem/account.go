package inmemdb

import (
	"context"
	"time"

	"github.com/triolingo/backend/core/identity"
)

type accountRepository struct {
	db *DB
}

var _ identity.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *DB) identity.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc identity.Account) (identity.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.emails[acc.Email]; ok {
		return identity.Account{}, identity.ErrEmailExists
	}
	repo.db.accounts[acc.UID] = acc
	repo.db.emails[acc.Email] = acc.UID
	return acc, nil
}

func (repo *accountRepository) GetAccountByEmail(_ context.Context, email string) (identity.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if uid, ok := repo.db.emails[email]; ok {
		return repo.db.accounts[uid], nil
	}
	return identity.Account{}, identity.ErrNotFound
}

func (repo *accountRepository) UpdateAccountPassword(_ context.Context, uid string, hash []byte, updatedAt time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc, ok := repo.db.accounts[uid]
	if !ok {
		return identity.ErrNotFound
	}
	acc.PasswordHash = hash
	acc.UpdatedAt = updatedAt
	repo.db.accounts[uid] = acc
	return nil
}
