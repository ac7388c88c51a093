package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/pkg/apierr"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", apierr.ErrNotFound, http.StatusNotFound},
		{"forbidden", apierr.ErrForbidden, http.StatusForbidden},
		{"unauthorized", apierr.ErrUnauthorized, http.StatusUnauthorized},
		{"conflict", apierr.ErrConflict, http.StatusConflict},
		{"precondition", apierr.ErrPrecondition, http.StatusPreconditionFailed},
		{"timeout", apierr.ErrTimeout, http.StatusGatewayTimeout},
		{"transient", apierr.ErrTransient, http.StatusServiceUnavailable},
		{"remote failure sentinel", apierr.ErrRemoteFailure, http.StatusBadGateway},
		{
			"validation error",
			apierr.NewValidationError("description", "required", "missing"),
			http.StatusUnprocessableEntity,
		},
		{
			"dependency missing",
			&apierr.DependencyMissingError{Dependency: "task", ID: "t1"},
			http.StatusNotFound,
		},
		{
			"remote failure carries its own status code",
			&apierr.RemoteFailureError{StatusCode: http.StatusTeapot, Body: "odd"},
			http.StatusTeapot,
		},
		{"unmapped error falls back to internal error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, respondError(c, tt.err))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
