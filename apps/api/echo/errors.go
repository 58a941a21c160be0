package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/triolingo/backend/core"
	"github.com/triolingo/backend/core/roulette"
)

var (
	errMissingToken      = echo.NewHTTPError(http.StatusUnauthorized, "authentication token not provided")
	errInvalidToken      = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	errBadCredentials    = echo.NewHTTPError(http.StatusUnauthorized, "incorrect email or password")
	errUserNotFound      = echo.NewHTTPError(http.StatusNotFound, "user not found")
	errProgressNotFound  = echo.NewHTTPError(http.StatusNotFound, "progress not found for this lesson")
	errInvalidData       = "invalid data"
	errUnexpectedFailure = http.StatusText(http.StatusInternalServerError)
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = echo.Map{"error": errInvalidData, "fields": fldErrs}
		case *core.ValidationError:
			msg := origErr.Error()
			if origErr.Err == nil {
				msg = errInvalidData
			}
			resp := echo.Map{"error": msg}
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				resp["fields"] = fldErrs
			}
			code = http.StatusBadRequest
			message = resp
		case *roulette.InsufficientFundsError:
			code = http.StatusBadRequest
			message = echo.Map{"error": "insufficient points for this bet", "currentPoints": origErr.CurrentPoints}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = errUnexpectedFailure

			var person core.Person
			if id, iErr := getContextIdentity(ctx); iErr == nil {
				person = core.Person{ID: id.UID, Name: id.Name, Email: id.Email}
			}
			logger.Error(errUnexpectedFailure, errors.Wrap(err, errUnexpectedFailure), person)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
