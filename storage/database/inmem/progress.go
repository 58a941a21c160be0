package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/triolingo/backend/core/progress"
	"github.com/triolingo/backend/core/roulette"
	"github.com/triolingo/backend/core/user"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) progress.Repository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetProgress(_ context.Context, uid, id string) (progress.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.progress[uid][id]; ok {
		return cloneRecord(rec), nil
	}
	return progress.Record{}, progress.ErrNotFound
}

func (repo *progressRepository) QueryProgress(_ context.Context, uid string, filter progress.QueryFilter) ([]progress.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]progress.Record, 0, len(repo.db.progress[uid]))
	for _, rec := range repo.db.progress[uid] {
		recs = append(recs, cloneRecord(rec))
	}
	return filter.Filter(recs), nil
}

func (repo *progressRepository) RunInTransaction(ctx context.Context, fn func(tx progress.Tx) error) error {
	return repo.db.runInTransaction(ctx, func(tx *transaction) error { return fn(tx) })
}

type rouletteRepository struct {
	db *DB
}

var _ roulette.Repository = (*rouletteRepository)(nil)

func NewRouletteRepository(db *DB) roulette.Repository {
	return &rouletteRepository{db: db}
}

func (repo *rouletteRepository) RunInTransaction(ctx context.Context, fn func(tx user.Tx) error) error {
	return repo.db.runInTransaction(ctx, func(tx *transaction) error { return fn(tx) })
}

// transaction buffers its writes: they are applied when the transaction function succeeds.
// The store write lock is held meanwhile, which serializes transactions.
type transaction struct {
	db       *DB
	users    map[string]user.User
	progress map[string]map[string]progress.Record
}

var _ progress.Tx = (*transaction)(nil)

func (db *DB) runInTransaction(ctx context.Context, fn func(tx *transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	tx := &transaction{
		db:       db,
		users:    make(map[string]user.User),
		progress: make(map[string]map[string]progress.Record),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for uid, usr := range tx.users {
		db.users[uid] = usr
	}
	for uid, recs := range tx.progress {
		if db.progress[uid] == nil {
			db.progress[uid] = make(map[string]progress.Record)
		}
		for id, rec := range recs {
			db.progress[uid][id] = rec
		}
	}
	return nil
}

func (tx *transaction) GetUser(_ context.Context, uid string) (user.User, error) {
	if usr, ok := tx.users[uid]; ok {
		return cloneUser(usr), nil
	}
	if usr, ok := tx.db.users[uid]; ok {
		return cloneUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (tx *transaction) UpdateUserScore(ctx context.Context, uid string, points int, stats user.Stats, updatedAt time.Time) error {
	usr, err := tx.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	usr.Points = points
	usr.Stats = stats.Clone()
	usr.UpdatedAt = updatedAt
	tx.users[uid] = usr
	return nil
}

func (tx *transaction) GetProgress(_ context.Context, uid, id string) (progress.Record, error) {
	if rec, ok := tx.progress[uid][id]; ok {
		return cloneRecord(rec), nil
	}
	if rec, ok := tx.db.progress[uid][id]; ok {
		return cloneRecord(rec), nil
	}
	return progress.Record{}, progress.ErrNotFound
}

func (tx *transaction) SaveProgress(_ context.Context, uid string, rec progress.Record) error {
	if tx.progress[uid] == nil {
		tx.progress[uid] = make(map[string]progress.Record)
	}
	tx.progress[uid][rec.ID] = cloneRecord(rec)
	return nil
}

func sortByUID(users []user.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
}
