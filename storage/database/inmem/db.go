package inmemdb

import (
	"sync"
	"time"

	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/progress"
	"github.com/triolingo/backend/core/user"
)

var nowFunc = time.Now // mockable

// DB is an in-memory document store. A single lock guards every collection so that
// a transaction can read and write users and progress records consistently.
type DB struct {
	mutex    sync.RWMutex
	users    map[string]user.User
	progress map[string]map[string]progress.Record // uid -> id -> record
	accounts map[string]identity.Account           // uid -> account
	emails   map[string]string                     // email -> uid
}

func Open() *DB {
	return &DB{
		users:    make(map[string]user.User),
		progress: make(map[string]map[string]progress.Record),
		accounts: make(map[string]identity.Account),
		emails:   make(map[string]string),
	}
}

// Reset drops all the documents.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.users = make(map[string]user.User)
	db.progress = make(map[string]map[string]progress.Record)
	db.accounts = make(map[string]identity.Account)
	db.emails = make(map[string]string)
}

func cloneUser(usr user.User) user.User {
	c := usr
	c.Stats = usr.Stats.Clone()
	if usr.TargetLanguages != nil {
		c.TargetLanguages = append([]string{}, usr.TargetLanguages...)
	}
	if usr.LastActive != nil {
		la := *usr.LastActive
		c.LastActive = &la
	}
	return c
}

func cloneRecord(rec progress.Record) progress.Record {
	c := rec
	if rec.CompletedAt != nil {
		ca := *rec.CompletedAt
		c.CompletedAt = &ca
	}
	return c
}
