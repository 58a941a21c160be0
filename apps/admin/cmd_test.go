package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/user"
	emailsvc "github.com/triolingo/backend/services/email"
	inmemdb "github.com/triolingo/backend/storage/database/inmem"
	sqlxrepos "github.com/triolingo/backend/storage/database/sqlx"
	"github.com/triolingo/backend/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(conf)

	// set up DB & repos
	db := testutil.OpenDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)

	// start CLI
	return &commandLine{
		db: db,
		idSvc: identity.NewService(
			sqlxrepos.NewAccountRepository(db),
			inmemdb.NewRevoker(),
			emailsvc.NewConsoleServiceMock(conf, logger),
			conf,
		),
		usrSvc: user.NewService(usrRepo, inmemdb.NewPresenceStore(conf.Presence.TTL), logger),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	origMigrate := migrateFunc
	defer func() { migrateFunc = origMigrate }()
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_migrate_goose(t *testing.T) {
	cli := setup(t) // migrated up

	require.NoError(t, cli.run([]string{"admin", "migrate", "down-to", "0"}))
	_, err := usrRepo.QueryUsers(context.Background(), user.QueryFilter{})
	assert.Error(t, err, "users table must be dropped")

	require.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	_, err = usrRepo.QueryUsers(context.Background(), user.QueryFilter{})
	assert.NoError(t, err)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "new@example.com"}, wantErr: errHelp},
		{name: "weak password", args: []string{"adduser", "-email", "new@example.com"}, extra: extra{pwd: "abc"}, wantErr: identity.ErrWeakPassword},
		{name: "success", args: []string{"adduser", "-email", "New@example.com", "-name", "Newbie"}, extra: extra{pwd: "secret1"}},
		{name: "email in use", args: []string{"adduser", "-email", "new@example.com"}, extra: extra{pwd: "secret1"}, wantErr: identity.ErrEmailExists},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			if vErr, ok := errors.Cause(err).(*core.ValidationError); ok {
				err = vErr.Err
			}
			assert.Equal(t, tt.wantErr, err)
		})
	}

	id, _, err := cli.idSvc.Login(context.Background(), identity.Credentials{Email: "new@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Newbie", id.Name)

	usr, err := usrRepo.GetUser(context.Background(), id.UID)
	require.NoError(t, err)
	assert.Equal(t, "Newbie", usr.Name)
	assert.Equal(t, "new@example.com", usr.Email)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	_, _, err := cli.idSvc.Register(context.Background(), identity.NewAccount{Email: "awe@test.cd", Password: "secret1"})
	require.NoError(t, err)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "account not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "secret2"}, wantErr: identity.ErrNotFound},
		{name: "weak password", args: []string{"resetpassword", "-email", "awe@test.cd"}, extra: extra{pwd: "lol"}, wantErr: identity.ErrWeakPassword},
		{name: "reset", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "secret2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	_, _, err = cli.idSvc.Login(context.Background(), identity.Credentials{Email: "awe@test.cd", Password: "secret1"})
	assert.Equal(t, identity.ErrInvalidCredentials, err)
	_, _, err = cli.idSvc.Login(context.Background(), identity.Credentials{Email: "awe@test.cd", Password: "secret2"})
	assert.NoError(t, err)
}

func Test_commandLine_exportRankings(t *testing.T) {
	cli := setup(t)
	dir := t.TempDir()

	testutil.CreateUser(t, usrRepo, identity.Identity{UID: "u1", Name: "Ana"}, 12, user.Stats{
		CompletedLessons:    2,
		TotalCorrectAnswers: 12,
		TotalExercises:      20,
		Languages:           map[string]user.LanguageStats{"en": {CompletedLessons: 2, CorrectAnswers: 12}},
	})
	testutil.CreateUser(t, usrRepo, identity.Identity{UID: "u2"}, 30, user.Stats{
		CompletedLessons:    3,
		TotalCorrectAnswers: 30,
		TotalExercises:      40,
		Languages:           map[string]user.LanguageStats{"fr": {CompletedLessons: 3, CorrectAnswers: 30}},
	})

	readRows := func(t *testing.T, path, sheet string) [][]string {
		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		return rows
	}

	t.Run("missing output", func(t *testing.T) {
		assert.Equal(t, errHelp, cli.run([]string{"admin", "exportrankings"}))
	})

	t.Run("invalid limit", func(t *testing.T) {
		err := cli.run([]string{"admin", "exportrankings", "-out", filepath.Join(dir, "x.xlsx"), "-limit", "0"})
		assert.True(t, core.IsValidationError(err))
	})

	t.Run("general", func(t *testing.T) {
		out := filepath.Join(dir, "general.xlsx")
		require.NoError(t, cli.run([]string{"admin", "exportrankings", "-out", out}))

		rows := readRows(t, out, "General")
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"Position", "Name", "UID", "Points", "Completed lessons", "Correct answers", "Exercises"}, rows[0])
		assert.Equal(t, []string{"1", user.AnonymousName, "u2", "30", "3", "30", "40"}, rows[1])
		assert.Equal(t, []string{"2", "Ana", "u1", "12", "2", "12", "20"}, rows[2])
	})

	t.Run("language", func(t *testing.T) {
		out := filepath.Join(dir, "en.xlsx")
		require.NoError(t, cli.run([]string{"admin", "exportrankings", "-out", out, "-language", "en", "-limit", "5"}))

		rows := readRows(t, out, "Language en")
		require.Len(t, rows, 2)
		assert.Equal(t, []string{"Position", "Name", "UID", "Correct answers", "Completed lessons"}, rows[0])
		assert.Equal(t, []string{"1", "Ana", "u1", "12", "2"}, rows[1])
	})
}
