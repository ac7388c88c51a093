package api

import (
	"encoding/json"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/authz"
)

// orgHeader is the optional JSON header carrying a principal's organisation
// memberships, since spec §4.1 names only "a verified principal" as the
// authz.Principal input and leaves its wire encoding unspecified. Taskara
// resolves it the way tarsy's own handlers resolve identity — by trusting
// a caller-supplied header, per extractAuthor's oauth2-proxy convention —
// extended with one additional header for organisation roles, since a bare
// email carries no membership information of its own.
const orgHeader = "X-Task-Organizations"

// principalFromRequest resolves the caller's authz.Principal from the
// request, mirroring extractAuthor's header-trust model: the bearer token
// (if present) is the principal's email outright, since nothing in the
// retrieved stack wires a JWT verifier. Under TASK_SERVER_NO_AUTH, a bare
// X-Task-Email header (or the oauth2-proxy X-Forwarded-Email/-User pair)
// is accepted instead, for local development and tests.
func principalFromRequest(c *echo.Context, noAuth bool) (authz.Principal, error) {
	email := bearerEmail(c)
	if email == "" && noAuth {
		email = forwardedEmail(c)
	}
	if email == "" {
		return authz.Principal{}, apierr.ErrUnauthorized
	}

	principal := authz.Principal{Email: email, Organizations: map[string]authz.OrgMembership{}}
	if raw := c.Request().Header.Get(orgHeader); raw != "" {
		var orgs map[string]authz.OrgMembership
		if err := json.Unmarshal([]byte(raw), &orgs); err == nil {
			principal.Organizations = orgs
		}
	}
	return principal, nil
}

func bearerEmail(c *echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix))
}

func forwardedEmail(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Task-Email"); user != "" {
		return user
	}
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	return ""
}
