package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core/roulette"
	"github.com/triolingo/backend/core/user"
)

type (
	rouletteApi struct {
		svc roulette.Service
	}

	BetResponse struct {
		roulette.Outcome
		Message string `json:"message"`
	}
)

func registerRouletteAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := rouletteApi{svc: deps.RouletteSvc}

	rg := g.Group("/roulette", auth)
	rg.POST("/bet", api.bet)
	rg.GET("/history", api.history)
}

// Handlers

func (api *rouletteApi) bet(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	var data roulette.Bet
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Bet")
	}
	data.Clean()

	out, err := api.svc.PlaceBet(ctx.Request().Context(), id.UID, data)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUserNotFound
		}
		return errors.Wrap(err, "placing bet")
	}

	msg := "You lost!"
	if out.Won {
		msg = "You won!"
	}
	return ctx.JSON(http.StatusOK, BetResponse{Outcome: out, Message: msg})
}

func (api *rouletteApi) history(ctx echo.Context) error {
	id, err := getContextIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context identity")
	}

	hist, err := api.svc.History(ctx.Request().Context(), id.UID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errUserNotFound
		}
		return errors.Wrap(err, "getting roulette history")
	}
	return ctx.JSON(http.StatusOK, hist)
}
