package identity_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	emailsvc "github.com/triolingo/backend/services/email"
	inmemdb "github.com/triolingo/backend/storage/database/inmem"
	sqlxrepos "github.com/triolingo/backend/storage/database/sqlx"
	"github.com/triolingo/backend/testutil"
)

func newService(t *testing.T, repo identity.Repository, conf *core.Config) (identity.Service, *emailsvc.ConsoleServiceMock) {
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf))
	return identity.NewService(repo, inmemdb.NewRevoker(), mailSvc, conf), mailSvc
}

var repos = map[string]func(t *testing.T) identity.Repository{
	"sqlx": func(t *testing.T) identity.Repository {
		return sqlxrepos.NewAccountRepository(testutil.OpenDB(t))
	},
	"inmem": func(t *testing.T) identity.Repository {
		return inmemdb.NewAccountRepository(inmemdb.Open())
	},
}

func validationCause(err error) error {
	if vErr, ok := errors.Cause(err).(*core.ValidationError); ok {
		return vErr.Err
	}
	return errors.Cause(err)
}

func TestService_Register(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, mailSvc := newService(t, newRepo(t), testutil.NewConfig())

			id, token, err := svc.Register(ctx, identity.NewAccount{Email: " Ana@Test.cd ", Password: "secret1", Name: " Ana "})
			require.NoError(t, err)
			assert.NotEmpty(t, id.UID)
			assert.Equal(t, "ana@test.cd", id.Email)
			assert.Equal(t, "Ana", id.Name)
			assert.NotEmpty(t, token)

			verified, err := svc.Verify(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, id, verified)

			sent := mailSvc.SentMessages()
			require.Len(t, sent, 1)
			assert.Equal(t, "ana@test.cd", sent[0].To[0].Address)
			assert.Contains(t, sent[0].TextContent, "Hi Ana,")

			_, _, err = svc.Register(ctx, identity.NewAccount{Email: "ana@test.cd", Password: "secret2"})
			assert.Equal(t, identity.ErrEmailExists, validationCause(err))

			_, _, err = svc.Register(ctx, identity.NewAccount{Email: "bob@test.cd", Password: "12345"})
			assert.Equal(t, identity.ErrWeakPassword, validationCause(err))

			_, _, err = svc.Register(ctx, identity.NewAccount{Email: "bob@test.cd", Password: strings.Repeat("a", identity.PasswordMaxLen+1)})
			assert.Equal(t, identity.ErrLongPassword, validationCause(err))
			// 36 runes, 108 bytes
			_, _, err = svc.Register(ctx, identity.NewAccount{Email: "bob@test.cd", Password: strings.Repeat("€", 36)})
			assert.Equal(t, identity.ErrLongPassword, validationCause(err))

			_, _, err = svc.Register(ctx, identity.NewAccount{Email: "bob@test.cd", Password: strings.Repeat("a", identity.PasswordMaxLen)})
			assert.NoError(t, err)
		})
	}
}

func TestService_Login(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t, newRepo(t), testutil.NewConfig())

			registered, _, err := svc.Register(ctx, identity.NewAccount{Email: "ana@test.cd", Password: "secret1"})
			require.NoError(t, err)

			tests := []struct {
				name    string
				creds   identity.Credentials
				wantErr error
			}{
				{name: "unknown email", creds: identity.Credentials{Email: "bob@test.cd", Password: "secret1"}, wantErr: identity.ErrInvalidCredentials},
				{name: "wrong password", creds: identity.Credentials{Email: "ana@test.cd", Password: "secret2"}, wantErr: identity.ErrInvalidCredentials},
				{name: "success", creds: identity.Credentials{Email: " ANA@test.cd", Password: "secret1"}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					id, token, err := svc.Login(ctx, tt.creds)
					if tt.wantErr != nil {
						assert.Equal(t, tt.wantErr, err)
						return
					}
					require.NoError(t, err)
					assert.Equal(t, registered, id)
					assert.NotEmpty(t, token)
				})
			}
		})
	}
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	repo := inmemdb.NewAccountRepository(inmemdb.Open())
	svc, _ := newService(t, repo, conf)
	id := identity.Identity{UID: "u1", Email: "u1@test.cd", Name: "U1"}

	valid, err := svc.IssueToken(id)
	require.NoError(t, err)

	otherConf := testutil.NewConfig()
	otherConf.SecretKey = "another-secret"
	otherSvc, _ := newService(t, repo, otherConf)
	foreign, err := otherSvc.IssueToken(id)
	require.NoError(t, err)

	expiredConf := testutil.NewConfig()
	expiredConf.Server.JWTExpirationDelta = -time.Minute
	expiredSvc, _ := newService(t, repo, expiredConf)
	expired, err := expiredSvc.IssueToken(id)
	require.NoError(t, err)

	noSubject, err := svc.IssueToken(identity.Identity{Email: "x@test.cd"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "", wantErr: identity.ErrInvalidToken},
		{name: "garbage", token: "lol.lol.lol", wantErr: identity.ErrInvalidToken},
		{name: "foreign signature", token: foreign, wantErr: identity.ErrInvalidToken},
		{name: "expired", token: expired, wantErr: identity.ErrInvalidToken},
		{name: "no subject", token: noSubject, wantErr: identity.ErrInvalidToken},
		{name: "valid", token: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Verify(ctx, tt.token)
			if err != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				assert.Equal(t, id, got)
			}
		})
	}
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, inmemdb.NewAccountRepository(inmemdb.Open()), testutil.NewConfig())
	id := identity.Identity{UID: "u1"}

	token, err := svc.IssueToken(id)
	require.NoError(t, err)
	other, err := svc.IssueToken(id)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, err = svc.Verify(ctx, token)
	assert.Equal(t, identity.ErrInvalidToken, err)

	_, err = svc.Verify(ctx, other)
	assert.NoError(t, err, "other sessions stay valid")

	assert.NoError(t, svc.Logout(ctx, "garbage"))
}

func TestService_ResetPassword(t *testing.T) {
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, _ := newService(t, newRepo(t), testutil.NewConfig())

			_, _, err := svc.Register(ctx, identity.NewAccount{Email: "ana@test.cd", Password: "secret1"})
			require.NoError(t, err)

			assert.Equal(t, identity.ErrWeakPassword, svc.ResetPassword(ctx, "ana@test.cd", "123"))
			assert.Equal(t, identity.ErrLongPassword, svc.ResetPassword(ctx, "ana@test.cd", strings.Repeat("a", 80)))
			assert.Equal(t, identity.ErrNotFound, errors.Cause(svc.ResetPassword(ctx, "bob@test.cd", "secret2")))

			require.NoError(t, svc.ResetPassword(ctx, " Ana@test.cd", "secret2"))
			_, _, err = svc.Login(ctx, identity.Credentials{Email: "ana@test.cd", Password: "secret1"})
			assert.Equal(t, identity.ErrInvalidCredentials, err)
			_, _, err = svc.Login(ctx, identity.Credentials{Email: "ana@test.cd", Password: "secret2"})
			assert.NoError(t, err)
		})
	}
}
