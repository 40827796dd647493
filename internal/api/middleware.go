// Package api implements the REST periphery around the real-time core
// (spec.md §1 "out of scope", SPEC_FULL.md's REST PERIPHERY table): group and
// user management, the waiting list, attachment upload, health, and the
// WebSocket upgrade into the gateway.
package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
)

// userCodeHeader is the bearer credential for the authenticated REST routes
// (spec.md §9: the header, not a cookie, is canonical). The gateway instead
// takes the user code in its Authenticate frame.
const userCodeHeader = "x-user-code"

// RequireAuth resolves the x-user-code header into an authenticated
// identity, storing userID and username in Locals for downstream handlers.
func RequireAuth(a *authz.Authorizer) fiber.Handler {
	return func(c fiber.Ctx) error {
		code := c.Get(userCodeHeader)
		if code == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing x-user-code header")
		}

		u, err := a.ResolveUserCode(c, code)
		if err != nil {
			return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "unknown user code")
		}

		c.Locals("userID", u.ID)
		c.Locals("username", u.Username)
		return c.Next()
	}
}

// userID extracts the authenticated user id stored by RequireAuth.
func userID(c fiber.Ctx) (int64, bool) {
	id, ok := c.Locals("userID").(int64)
	return id, ok
}
