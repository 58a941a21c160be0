package identity

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
)

var (
	// errors
	ErrNotFound           = errors.New("account not found")
	ErrEmailExists        = errors.New("this email is already in use")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = fmt.Errorf("password must contain at least %d characters", PasswordMinLen)
	ErrLongPassword       = fmt.Errorf("password must not be longer than %d bytes", PasswordMaxLen)

	signingMethod = jwt.SigningMethodHS256
	nowFunc       = time.Now // mockable
)

const welcomeTemplate = "welcome"

func init() {
	core.RegisterEmailTemplate(
		welcomeTemplate,
		`Hi {{if .Name}}{{.Name}}{{else}}there{{end}},

Welcome to {{.AppName}}! Your account is ready: pick a language and start your first lesson.
`,
		`<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Welcome to <strong>{{.AppName}}</strong>! Your account is ready: pick a language and start your first lesson.</p>
`,
	)
}

// Service is both the credential provider (register/login/logout) and the token Verifier.
type Service interface {
	Verifier
	Register(ctx context.Context, na NewAccount) (Identity, string, error)
	Login(ctx context.Context, creds Credentials) (Identity, string, error)
	Logout(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, email, pwd string) error
	IssueToken(id Identity) (string, error)
}

type service struct {
	repo      Repository
	revoker   Revoker
	mailSvc   core.EmailService
	appName   string
	secretKey []byte
	tokenTTL  time.Duration
}

var _ Service = (*service)(nil)

func NewService(repo Repository, revoker Revoker, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:      repo,
		revoker:   revoker,
		mailSvc:   mailSvc,
		appName:   conf.AppName,
		secretKey: []byte(conf.SecretKey),
		tokenTTL:  conf.Server.JWTExpirationDelta,
	}
}

func (svc *service) Register(ctx context.Context, na NewAccount) (Identity, string, error) {
	na.Clean()
	if err := checkPassword(na.Password); err != nil {
		return Identity{}, "", core.NewValidationError(err, core.FieldError{Field: "password", Error: err.Error()})
	}

	now := nowFunc().UTC()
	acc := Account{
		UID:       uuid.New().String(),
		Email:     na.Email,
		Name:      na.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Identity{}, "", errors.Wrap(err, "hashing password")
	}
	acc, err := svc.repo.CreateAccount(ctx, acc)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return Identity{}, "", core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		return Identity{}, "", errors.Wrap(err, "creating account")
	}

	svc.sendWelcomeMail(acc)

	token, err := svc.IssueToken(acc.Identity())
	if err != nil {
		return Identity{}, "", err
	}
	return acc.Identity(), token, nil
}

func (svc *service) Login(ctx context.Context, creds Credentials) (Identity, string, error) {
	creds.Clean()
	acc, err := svc.repo.GetAccountByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Identity{}, "", ErrInvalidCredentials
		}
		return Identity{}, "", errors.Wrap(err, "finding account by email")
	}
	if err = acc.CheckPassword(creds.Password); err != nil {
		return Identity{}, "", ErrInvalidCredentials
	}

	token, err := svc.IssueToken(acc.Identity())
	if err != nil {
		return Identity{}, "", err
	}
	return acc.Identity(), token, nil
}

// Logout revokes `token` until it expires. Invalid tokens are ignored.
func (svc *service) Logout(ctx context.Context, token string) error {
	claims, err := svc.parse(token)
	if err != nil {
		return nil
	}
	until := time.Unix(claims.ExpiresAt, 0)
	return errors.Wrap(svc.revoker.Revoke(ctx, claims.Id, until), "revoking token")
}

func (svc *service) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := svc.parse(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	revoked, err := svc.revoker.IsRevoked(ctx, claims.Id)
	if err != nil {
		return Identity{}, errors.Wrap(err, "checking token revocation")
	}
	if revoked {
		return Identity{}, ErrInvalidToken
	}
	return claims.Identity(), nil
}

func (svc *service) ResetPassword(ctx context.Context, email, pwd string) error {
	if err := checkPassword(pwd); err != nil {
		return err
	}
	acc, err := svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err = acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return svc.repo.UpdateAccountPassword(ctx, acc.UID, acc.PasswordHash, nowFunc().UTC())
}

func checkPassword(pwd string) error {
	switch {
	case len(pwd) < PasswordMinLen:
		return ErrWeakPassword
	case len(pwd) > PasswordMaxLen:
		return ErrLongPassword
	}
	return nil
}

// IssueToken generates a signed JWT representing `id`.
func (svc *service) IssueToken(id Identity) (string, error) {
	now := nowFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    svc.appName,
			Subject:   id.UID,
			ExpiresAt: now.Add(svc.tokenTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: id.Email,
		Name:  id.Name,
	}
	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(svc.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (svc *service) parse(token string) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return svc.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (svc *service) sendWelcomeMail(acc Account) {
	if svc.mailSvc == nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.Name, Address: acc.Email}},
		Subject:      "Welcome!",
		TemplateName: welcomeTemplate,
		TemplateData: map[string]string{"Name": acc.Name, "AppName": svc.appName},
	})
}
