package inmemdb

import (
	"context"

	"github.com/triolingo/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) GetUser(_ context.Context, uid string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[uid]; ok {
		return cloneUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) CreateUserIfNotExists(_ context.Context, usr user.User) (user.User, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if stored, ok := repo.db.users[usr.UID]; ok {
		return cloneUser(stored), false, nil
	}
	repo.db.users[usr.UID] = cloneUser(usr)
	return usr, true, nil
}

func (repo *userRepository) UpdateProfile(_ context.Context, uid string, pu user.ProfileUpdate) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.users[uid]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr = cloneUser(usr)
	pu.Apply(&usr)
	repo.db.users[uid] = usr
	return cloneUser(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		users = append(users, cloneUser(usr))
	}
	if !filter.OrderByPoints {
		// map iteration order is random
		sortByUID(users)
	}
	return filter.Filter(users), nil
}
