package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/identity"
	"github.com/triolingo/backend/core/user"
)

const (
	bearerPrefix       = "Bearer "
	contextIdentityKey = "identity"
	contextTokenKey    = "token"
)

var errIdentityNotFoundInCtx = errors.New("identity not found in echo.Context")

// authMiddleware rejects requests without a valid bearer token and stores the verified identity in the context.
func authMiddleware(verifier identity.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := bearerToken(ctx.Request())
			if !ok {
				return errMissingToken
			}

			id, err := verifier.Verify(ctx.Request().Context(), token)
			if err != nil {
				if errors.Cause(err) == identity.ErrInvalidToken {
					return errInvalidToken
				}
				return errors.Wrap(err, "verifying token")
			}

			ctx.Set(contextIdentityKey, id)
			ctx.Set(contextTokenKey, token)
			return next(ctx)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func getContextIdentity(ctx echo.Context) (identity.Identity, error) {
	if id, ok := ctx.Get(contextIdentityKey).(identity.Identity); ok {
		return id, nil
	}
	return identity.Identity{}, errIdentityNotFoundInCtx
}

type (
	authApi struct {
		svc      identity.Service
		userSvc  user.Service
		validate *validator.Validate
		log      core.Logger
	}

	AuthResponse struct {
		Message string            `json:"message"`
		User    identity.Identity `json:"user"`
		Token   string            `json:"token"`
	}
)

func registerAuthAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := authApi{
		svc:      deps.IdentitySvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
		log:      deps.Logger,
	}

	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout, auth)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data identity.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	id, token, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering")
	}
	api.ensureUser(ctx, id)

	return ctx.JSON(http.StatusCreated, AuthResponse{Message: "User registered successfully", User: id, Token: token})
}

func (api *authApi) login(ctx echo.Context) error {
	var data identity.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	id, token, err := api.svc.Login(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == identity.ErrInvalidCredentials {
			return errBadCredentials
		}
		return errors.Wrap(err, "logging in")
	}
	api.ensureUser(ctx, id)

	return ctx.JSON(http.StatusOK, AuthResponse{Message: "Login successful", User: id, Token: token})
}

// ensureUser creates the user document of a freshly authenticated identity.
// A store failure does not fail the authentication: the document is created again on the next user request.
func (api *authApi) ensureUser(ctx echo.Context, id identity.Identity) {
	if _, _, err := api.userSvc.EnsureUser(ctx.Request().Context(), id); err != nil {
		api.log.Warn("creating user document", err, core.Person{ID: id.UID, Name: id.Name, Email: id.Email})
	}
}

func (api *authApi) logout(ctx echo.Context) error {
	token, _ := ctx.Get(contextTokenKey).(string)
	if err := api.svc.Logout(ctx.Request().Context(), token); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}
