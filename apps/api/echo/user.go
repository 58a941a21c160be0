package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/user"
)

type (
	userApi struct {
		svc      user.Service
		validate *validator.Validate
	}

	CheckUserResponse struct {
		Message  string    `json:"message"`
		Created  bool      `json:"created"`
		UserData user.User `json:"userData"`
	}

	OnlineStatusResponse struct {
		Message  string `json:"message"`
		IsOnline bool   `json:"isOnline"`
	}
)

func registerUserAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{
		svc:      deps.UserSvc,
		validate: deps.Validate,
	}

	ug := g.Group("/user", auth)
	ug.GET("/profile", api.profile)
	ug.GET("/check", api.check)
	ug.GET("/learning-languages", api.learningLanguages)
	ug.POST("/languages", api.setLanguages)
	ug.GET("/points", api.points)
	ug.POST("/online-status", api.setOnlineStatus)
	ug.GET("/rankings/general", api.generalRanking)
	ug.GET("/rankings/language/:language", api.languageRanking)
}

// Handlers

func (api *userApi) profile(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	prof, err := api.svc.Profile(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *userApi) check(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	usr, created, err := api.svc.EnsureUser(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "ensuring user document")
	}
	if created {
		return ctx.JSON(http.StatusCreated, CheckUserResponse{Message: "User document created", Created: true, UserData: usr})
	}
	return ctx.JSON(http.StatusOK, CheckUserResponse{Message: "User document exists", UserData: usr})
}

func (api *userApi) learningLanguages(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	langs, err := api.svc.LearningLanguages(ctx.Request().Context(), id.UID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUserNotFound
		}
		return errors.Wrap(err, "getting learning languages")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"targetLanguages": langs})
}

func (api *userApi) setLanguages(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	var data user.UpdateLanguages
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLanguages")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	data.Clean()

	if err = api.svc.SetTargetLanguages(ctx.Request().Context(), id, data.TargetLanguages); err != nil {
		return errors.Wrap(err, "setting target languages")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":         "Languages updated successfully",
		"targetLanguages": data.TargetLanguages,
	})
}

func (api *userApi) points(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	pts, err := api.svc.Points(ctx.Request().Context(), id.UID)
	if err != nil {
		return errors.Wrap(err, "getting points")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"points": pts})
}

func (api *userApi) setOnlineStatus(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	var data user.UpdateOnlineStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOnlineStatus")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	created, err := api.svc.SetOnlineStatus(ctx.Request().Context(), id, *data.IsOnline)
	if err != nil {
		return errors.Wrap(err, "setting online status")
	}
	if created {
		return ctx.JSON(http.StatusCreated, OnlineStatusResponse{Message: "User document created with online status", IsOnline: *data.IsOnline})
	}
	return ctx.JSON(http.StatusOK, OnlineStatusResponse{Message: "Online status updated", IsOnline: *data.IsOnline})
}

func (api *userApi) generalRanking(ctx echo.Context) error {
	limit, err := queryLimit(ctx, user.DefaultRankingLimit, user.ErrInvalidLimit)
	if err != nil {
		return err
	}

	rankings, err := api.svc.GeneralRanking(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "getting general ranking")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"rankings": rankings})
}

func (api *userApi) languageRanking(ctx echo.Context) error {
	limit, err := queryLimit(ctx, user.DefaultRankingLimit, user.ErrInvalidLimit)
	if err != nil {
		return err
	}

	lang := ctx.Param("language")
	rankings, err := api.svc.LanguageRanking(ctx.Request().Context(), lang, limit)
	if err != nil {
		return errors.Wrap(err, "getting language ranking")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"language": lang, "rankings": rankings})
}
