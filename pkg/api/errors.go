package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/apierr"
)

// fieldErrorResponse is the 422 body spec §6 names: the field list
// verbatim, wrapped only in a top-level error message.
type fieldErrorResponse struct {
	Error  string              `json:"error"`
	Fields []apierr.FieldError `json:"fields"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps a core-layer error to its transport status, per spec
// §6/§7's error kind table. It replaces tarsy's mapServiceError, which
// switched on pkg/services' own sentinel set — Taskara's sentinels live one
// layer down, in pkg/apierr, rather than beside the transport.
func respondError(c *echo.Context, err error) error {
	var verr *apierr.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, fieldErrorResponse{Error: verr.Error(), Fields: verr.Fields})
	}

	var rerr *apierr.RemoteFailureError
	if errors.As(err, &rerr) {
		return c.JSON(rerr.StatusCode, errorResponse{Error: rerr.Error()})
	}

	var derr *apierr.DependencyMissingError
	if errors.As(err, &derr) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: derr.Error()})
	}

	switch {
	case errors.Is(err, apierr.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrPrecondition):
		return c.JSON(http.StatusPreconditionFailed, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrDependencyMissing):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrTimeout):
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrTransient):
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, apierr.ErrRemoteFailure):
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		slog.Error("unhandled api error", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
