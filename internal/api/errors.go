package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"liveclass/pkg/types"
)

// errorStatus maps the shared error taxonomy to a status code.
func errorStatus(err error) int {
	var ambiguous *types.AmbiguousDependent
	var verr *types.ValidationError
	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &verr), errors.As(err, &vErrs), errors.As(err, &ambiguous):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrMissingDependentProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrMediaTokenIssuance):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidStateTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// newHTTPErrorHandler renders every handler error as a JSON body of the
// form {"error": message} with extra keys for validation and media failures.
func newHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var code int
		body := echo.Map{}

		var herr *echo.HTTPError
		var verr *types.ValidationError
		var vErrs validator.ValidationErrors
		var ambiguous *types.AmbiguousDependent
		switch {
		case errors.As(err, &herr):
			code = herr.Code
			body["error"] = herr.Message
		case errors.As(err, &verr):
			code = http.StatusBadRequest
			body["error"] = "validation failed"
			if len(verr.Fields) > 0 {
				fields := make(map[string]string, len(verr.Fields))
				for _, f := range verr.Fields {
					fields[f.Field] = f.Error
				}
				body["fields"] = fields
			} else {
				body["error"] = verr.Error()
			}
		case errors.As(err, &vErrs):
			code = http.StatusBadRequest
			fields := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				fields[fe.Field()] = fe.Translate(types.Translator)
			}
			body["error"] = "validation failed"
			body["fields"] = fields
		case errors.As(err, &ambiguous):
			code = http.StatusBadRequest
			body["error"] = "child_id is required for accounts with several dependents"
			body["children"] = ambiguous.Dependents
		default:
			code = errorStatus(err)
			body["error"] = err.Error()
			if code == http.StatusServiceUnavailable {
				body["media_available"] = false
			}
			if code == http.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Path()),
					zap.String("account_id", actorFrom(c).AccountID),
					zap.Error(err))
				body["error"] = http.StatusText(http.StatusInternalServerError)
			}
		}

		if c.Echo().Debug {
			body["detail"] = err.Error()
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}
