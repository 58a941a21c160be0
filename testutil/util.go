// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/user"
	logsvc "github.com/triolingo/backend/services/logger"
	"github.com/triolingo/backend/storage/database"
)

// NewConfig returns the configuration of the TEST environment, backed by an in-memory sqlite database.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Triolingo",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		DefaultFromEmail: mail.Address{Name: "Triolingo", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			Host:               "localhost",
			Address:            ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Database: core.DatabaseConfig{
			Engine: database.SQLite,
			Path:   ":memory:",
		},
		Presence: core.PresenceConfig{
			TTL:           time.Minute,
			SweepInterval: time.Minute,
		},
	}
}

// NewLogger returns a logger writing nowhere, with rollbar disabled.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "TEST : ", log.LstdFlags), conf)
	logger.Enable(false)
	return logger
}

// NewValidator returns a validator with the app validations and english translations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate, translator
}

// OpenDB opens a migrated in-memory sqlite database, closed when the test ends.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(NewConfig())
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

// CreateUser stores the default document of `id` with the given points and stats.
func CreateUser(t *testing.T, repo user.Repository, id identity.Identity, points int, stats user.Stats, createdAt ...time.Time) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}

	usr := user.NewUser(id, tstamp)
	usr.Points = points
	if stats.Languages == nil {
		stats.Languages = make(map[string]user.LanguageStats)
	}
	usr.Stats = stats
	usr, created, err := repo.CreateUserIfNotExists(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if !created {
		t.Fatalf("CreateUser() failed: user %q already exists", id.UID)
	}
	return usr
}
