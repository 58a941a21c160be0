// Package roulette implements the points betting minigame.
package roulette

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
)

type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

func (c Color) IsValid() bool { return c == Red || c == Black }

var (
	// errors
	ErrInvalidColor  = errors.New(`invalid color: choose "red" or "black"`)
	ErrInvalidAmount = errors.New("invalid amount of points")
)

// InsufficientFundsError is returned when a bet exceeds the points of the user.
type InsufficientFundsError struct {
	CurrentPoints int
	Amount        int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient points for this bet: %d < %d", e.CurrentPoints, e.Amount)
}

// IsInsufficientFunds reports whether the cause of err is an *InsufficientFundsError.
func IsInsufficientFunds(err error) (*InsufficientFundsError, bool) {
	e, ok := errors.Cause(err).(*InsufficientFundsError)
	return e, ok
}

// Spinner draws the result of a spin: 0 is red, 1 is black.
type Spinner interface {
	Spin() (int, error)
}

// SpinnerFunc adapts a function to a Spinner.
type SpinnerFunc func() (int, error)

func (f SpinnerFunc) Spin() (int, error) { return f() }

// CryptoSpinner draws uniformly random bits from crypto/rand.
var CryptoSpinner Spinner = SpinnerFunc(func() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
})

// Outcome is a settled bet.
type Outcome struct {
	Won         bool  `json:"success"`
	BetColor    Color `json:"betColor"`
	ResultColor Color `json:"resultColor"`
	PointsWon   int   `json:"pointsWon"`
	PointsLost  int   `json:"pointsLost"`
	NewTotal    int   `json:"newTotal"`
}

// PlaceBet bets `amount` of `currentPoints` on `color`: the amount is doubled on a win and lost otherwise.
func PlaceBet(currentPoints int, color Color, amount int, spinner Spinner) (Outcome, error) {
	if !color.IsValid() {
		return Outcome{}, core.NewValidationError(ErrInvalidColor, core.FieldError{Field: "color", Error: ErrInvalidColor.Error()})
	}
	if amount <= 0 {
		return Outcome{}, core.NewValidationError(ErrInvalidAmount, core.FieldError{Field: "amount", Error: ErrInvalidAmount.Error()})
	}
	if amount > currentPoints {
		return Outcome{}, &InsufficientFundsError{CurrentPoints: currentPoints, Amount: amount}
	}

	bit, err := spinner.Spin()
	if err != nil {
		return Outcome{}, errors.Wrap(err, "spinning")
	}
	result := Red
	if bit != 0 {
		result = Black
	}

	out := Outcome{BetColor: color, ResultColor: result, Won: result == color}
	if out.Won {
		out.PointsWon = amount
		out.NewTotal = currentPoints + amount
	} else {
		out.PointsLost = amount
		out.NewTotal = currentPoints - amount
	}
	return out, nil
}
