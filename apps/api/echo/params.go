package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/triolingo/backend/core"
)

const limitParam = "limit"

// queryLimit parses the `limit` query parameter, `def` when absent.
// A non-integer value is reported as `invalid` on the limit field.
func queryLimit(ctx echo.Context, def int, invalid error) (int, error) {
	raw := core.CleanString(ctx.QueryParam(limitParam))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.NewValidationError(invalid, core.FieldError{Field: limitParam, Error: invalid.Error()})
	}
	return limit, nil
}
