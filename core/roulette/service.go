package roulette

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/user"
)

var nowFunc = time.Now // mockable

// Bet is the payload of a bet request.
type Bet struct {
	Color  Color `json:"color"`
	Amount int   `json:"amount"`
}

func (b *Bet) Clean() {
	b.Color = Color(core.CleanString(string(b.Color), true /* lower */))
}

// History is the betting record of a user.
type History struct {
	Stats         user.RouletteStats `json:"stats"`
	CurrentPoints int                `json:"currentPoints"`
}

type (
	Repository interface {
		// RunInTransaction runs `fn` against a consistent snapshot of the user documents
		// and commits its writes atomically.
		RunInTransaction(ctx context.Context, fn func(tx user.Tx) error) error
	}

	Service interface {
		PlaceBet(ctx context.Context, uid string, bet Bet) (Outcome, error)
		History(ctx context.Context, uid string) (History, error)
	}

	service struct {
		repo    Repository
		users   user.Service
		spinner Spinner
		log     core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, spinner Spinner, logger core.Logger) Service {
	if spinner == nil {
		spinner = CryptoSpinner
	}
	return &service{repo: repo, users: userSvc, spinner: spinner, log: logger}
}

// PlaceBet settles `bet` against the points of the user read in the same transaction
// that writes the new total, so concurrent bets cannot overdraw.
func (svc *service) PlaceBet(ctx context.Context, uid string, bet Bet) (Outcome, error) {
	var out Outcome
	err := svc.repo.RunInTransaction(ctx, func(tx user.Tx) error {
		usr, err := tx.GetUser(ctx, uid)
		if err != nil {
			return err
		}
		if out, err = PlaceBet(usr.Points, bet.Color, bet.Amount, svc.spinner); err != nil {
			return err
		}

		stats := usr.Stats.Clone()
		stats.Roulette.RecordBet(out.Won, bet.Amount)
		return tx.UpdateUserScore(ctx, uid, out.NewTotal, stats, nowFunc().UTC())
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "placing bet")
	}

	svc.log.Debug("bet placed", map[string]interface{}{
		"uid":      uid,
		"color":    bet.Color,
		"amount":   bet.Amount,
		"won":      out.Won,
		"newTotal": out.NewTotal,
	})
	return out, nil
}

func (svc *service) History(ctx context.Context, uid string) (History, error) {
	usr, err := svc.users.GetUser(ctx, uid)
	if err != nil {
		return History{}, err
	}
	return History{Stats: usr.Stats.Roulette, CurrentPoints: usr.Points}, nil
}
