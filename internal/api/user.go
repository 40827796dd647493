package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
	"github.com/tienphuckx/anony-box-backbone/internal/user"
)

// UserHandler serves user registration.
type UserHandler struct {
	users user.Repository
	log   zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users user.Repository, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, log: logger}
}

type createUserRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	UserCode string `json:"user_code"`
}

// CreateUser handles POST /api/v1/users. It does not require the x-user-code
// header, since it is how a caller obtains one (health and the gateway
// upgrade are the other routes without it).
func (h *UserHandler) CreateUser(c fiber.Ctx) error {
	var body createUserRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid request body")
	}

	name, err := user.ValidateUsername(body.Username)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, err.Error())
	}

	u, err := h.users.CreateUser(c, name)
	if err != nil {
		h.log.Error().Err(err).Msg("create user failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, userResponse{ID: u.ID, Username: u.Username, UserCode: u.UserCode})
}
