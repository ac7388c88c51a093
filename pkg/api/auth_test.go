package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsea/taskara/pkg/authz"
)

func TestPrincipalFromRequest(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		noAuth      bool
		wantEmail   string
		wantErr     bool
		wantOrgRole authz.Role
		wantOrgID   string
	}{
		{
			name:      "bearer token is trusted as email",
			headers:   map[string]string{"Authorization": "Bearer tom@myspace.com"},
			wantEmail: "tom@myspace.com",
		},
		{
			name:    "no bearer and no-auth off is unauthorized",
			headers: map[string]string{},
			wantErr: true,
		},
		{
			name:      "no-auth falls back to forwarded email",
			headers:   map[string]string{"X-Forwarded-Email": "bob@example.com"},
			noAuth:    true,
			wantEmail: "bob@example.com",
		},
		{
			name:      "no-auth prefers X-Task-Email over forwarded headers",
			headers:   map[string]string{"X-Task-Email": "carol@example.com", "X-Forwarded-User": "dave"},
			noAuth:    true,
			wantEmail: "carol@example.com",
		},
		{
			name: "organisation header parses into Principal.Organizations",
			headers: map[string]string{
				"Authorization":       "Bearer tom@myspace.com",
				"X-Task-Organizations": `{"acme-corp":{"Role":"admin"}}`,
			},
			wantEmail:   "tom@myspace.com",
			wantOrgID:   "acme-corp",
			wantOrgRole: authz.RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			principal, err := principalFromRequest(c, tt.noAuth)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEmail, principal.Email)
			if tt.wantOrgID != "" {
				assert.Equal(t, tt.wantOrgRole, principal.Organizations[tt.wantOrgID].Role)
			}
		})
	}
}
