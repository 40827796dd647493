package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/gateway"
	"github.com/tienphuckx/anony-box-backbone/internal/group"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
	"github.com/tienphuckx/anony-box-backbone/internal/passphrase"
	"github.com/tienphuckx/anony-box-backbone/internal/ratelimit"
	"github.com/tienphuckx/anony-box-backbone/internal/waitinglist"
)

// GroupHandler serves group lifecycle, membership, and waiting-list endpoints.
type GroupHandler struct {
	groups     group.Repository
	waiting    waitinglist.Repository
	authz      *authz.Authorizer
	dispatcher *gateway.Dispatcher
	joinLimit  *ratelimit.Limiter
	log        zerolog.Logger
}

// NewGroupHandler creates a new group handler.
func NewGroupHandler(groups group.Repository, waiting waitinglist.Repository, a *authz.Authorizer, dispatcher *gateway.Dispatcher, joinLimit *ratelimit.Limiter, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, waiting: waiting, authz: a, dispatcher: dispatcher, joinLimit: joinLimit, log: logger}
}

type groupResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	GroupCode        string `json:"group_code"`
	OwnerID          int64  `json:"owner_id"`
	ApprovalRequired bool   `json:"approval_required"`
	MaximumMembers   *int   `json:"maximum_members,omitempty"`
	HasPassphrase    bool   `json:"has_passphrase"`
	CreatedAt        string `json:"created_at"`
	ExpiredAt        string `json:"expired_at"`
}

func toGroupResponse(g *group.Group) groupResponse {
	return groupResponse{
		ID:               g.ID,
		Name:             g.Name,
		GroupCode:        g.GroupCode,
		OwnerID:          g.OwnerID,
		ApprovalRequired: g.ApprovalRequired,
		MaximumMembers:   g.MaximumMembers,
		HasPassphrase:    g.PassphraseHash != nil,
		CreatedAt:        g.CreatedAt.Format(time.RFC3339),
		ExpiredAt:        g.ExpiredAt.Format(time.RFC3339),
	}
}

type createGroupRequest struct {
	Name             string `json:"name"`
	ApprovalRequired bool   `json:"approval_required"`
	MaximumMembers   *int   `json:"maximum_members,omitempty"`
	DurationSeconds  int64  `json:"duration_seconds"`
	Passphrase       string `json:"passphrase,omitempty"`
}

// CreateGroup handles POST /api/v1/groups.
func (h *GroupHandler) CreateGroup(c fiber.Ctx) error {
	owner, ok := userID(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}

	var body createGroupRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid request body")
	}

	name, err := group.ValidateName(body.Name)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, err.Error())
	}

	duration := time.Duration(body.DurationSeconds) * time.Second
	if err := group.ValidateDuration(duration); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, err.Error())
	}

	var passHash *string
	if body.Passphrase != "" {
		hash, err := passphrase.Hash(body.Passphrase)
		if err != nil {
			h.log.Error().Err(err).Msg("hash group passphrase failed")
			return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
		}
		passHash = &hash
	}

	g, err := h.groups.CreateGroup(c, group.CreateParams{
		OwnerID:          owner,
		Name:             name,
		ApprovalRequired: body.ApprovalRequired,
		MaximumMembers:   body.MaximumMembers,
		Duration:         duration,
		PassphraseHash:   passHash,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("create group failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, toGroupResponse(g))
}

// GetByCode handles GET /api/v1/groups/by-code/:code.
func (h *GroupHandler) GetByCode(c fiber.Ctx) error {
	g, err := h.groups.FindByCode(c, c.Params("code"))
	if err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, toGroupResponse(g))
}

type joinGroupRequest struct {
	Passphrase string  `json:"passphrase,omitempty"`
	Message    *string `json:"message,omitempty"`
}

type joinGroupResponse struct {
	IsWaiting bool `json:"is_waiting"`
}

// Join handles POST /api/v1/groups/by-code/:code/join.
func (h *GroupHandler) Join(c fiber.Ctx) error {
	caller, ok := userID(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}

	if h.joinLimit != nil {
		allowed, err := h.joinLimit.Allow(c, "join:"+c.IP())
		if err != nil {
			h.log.Warn().Err(err).Msg("join rate limit check failed, allowing request")
		} else if !allowed {
			return httputil.Fail(c, fiber.StatusTooManyRequests, apperr.Forbidden, "too many join attempts, try again later")
		}
	}

	g, err := h.groups.FindByCode(c, c.Params("code"))
	if err != nil {
		return h.mapGroupError(c, err)
	}

	if g.IsExpired(time.Now()) {
		return httputil.Fail(c, fiber.StatusGone, apperr.NotFound, group.ErrExpired.Error())
	}

	var body joinGroupRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid request body")
	}

	if g.PassphraseHash != nil {
		ok, err := passphrase.Verify(body.Passphrase, *g.PassphraseHash)
		if err != nil {
			h.log.Error().Err(err).Msg("verify group passphrase failed")
			return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
		}
		if !ok {
			return httputil.Fail(c, fiber.StatusForbidden, apperr.Forbidden, group.ErrWrongPassphrase.Error())
		}
	}

	if g.ApprovalRequired {
		message := ""
		if body.Message != nil {
			message = *body.Message
		}
		validated, err := waitinglist.ValidateMessage(message)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, err.Error())
		}
		var msgPtr *string
		if validated != "" {
			msgPtr = &validated
		}
		if _, err := h.waiting.Add(c, caller, g.ID, msgPtr); err != nil {
			return h.mapGroupError(c, err)
		}
		return httputil.Success(c, joinGroupResponse{IsWaiting: true})
	}

	if err := h.authz.RequireCapacity(c, g); err != nil {
		return h.mapGroupError(c, err)
	}
	if err := h.groups.AddParticipant(c, caller, g.ID); err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, joinGroupResponse{IsWaiting: false})
}

type waitingEntryResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	GroupID   int64   `json:"group_id"`
	Message   *string `json:"message,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// ListWaiting handles GET /api/v1/groups/:groupID/waiting. Owner only.
func (h *GroupHandler) ListWaiting(c fiber.Ctx) error {
	caller, groupID, ok := h.ownerScoped(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}
	if err := h.authz.RequireOwner(c, caller, groupID); err != nil {
		return h.mapGroupError(c, err)
	}

	entries, err := h.waiting.ListForGroup(c, groupID)
	if err != nil {
		h.log.Error().Err(err).Msg("list waiting entries failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	out := make([]waitingEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = waitingEntryResponse{ID: e.ID, UserID: e.UserID, GroupID: e.GroupID, Message: e.Message, CreatedAt: e.CreatedAt.Format(time.RFC3339)}
	}
	return httputil.Success(c, out)
}

type decideWaitingRequest struct {
	Decision waitinglist.Decision `json:"decision"`
}

// DecideWaiting handles POST /api/v1/groups/:groupID/waiting/:entryID/decide. Owner only.
func (h *GroupHandler) DecideWaiting(c fiber.Ctx) error {
	caller, groupID, ok := h.ownerScoped(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}
	if err := h.authz.RequireOwner(c, caller, groupID); err != nil {
		return h.mapGroupError(c, err)
	}

	entryID, err := c.ParamsInt("entryID")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid entry id")
	}

	var body decideWaitingRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid request body")
	}
	if body.Decision != waitinglist.DecisionAccept && body.Decision != waitinglist.DecisionReject {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "decision must be Accept or Reject")
	}

	if err := h.waiting.Decide(c, int64(entryID), body.Decision); err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, nil)
}

// RemoveMember handles DELETE /api/v1/groups/:groupID/members/:userID. Owner
// only (SPEC_FULL.md supplemented feature: member removal by the owner).
func (h *GroupHandler) RemoveMember(c fiber.Ctx) error {
	caller, groupID, ok := h.ownerScoped(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}
	if err := h.authz.RequireOwner(c, caller, groupID); err != nil {
		return h.mapGroupError(c, err)
	}

	targetID, err := c.ParamsInt("userID")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid user id")
	}

	if err := h.groups.RemoveParticipant(c, int64(targetID), groupID); err != nil {
		return h.mapGroupError(c, err)
	}

	if h.dispatcher != nil {
		h.dispatcher.NotifyUser(int64(targetID), gateway.FrameKicked, gateway.KickedEvent{GroupID: groupID})
	}
	return httputil.Success(c, nil)
}

// DeleteGroup handles DELETE /api/v1/groups/:groupID. Owner only.
func (h *GroupHandler) DeleteGroup(c fiber.Ctx) error {
	caller, groupID, ok := h.ownerScoped(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}
	if err := h.authz.RequireOwner(c, caller, groupID); err != nil {
		return h.mapGroupError(c, err)
	}

	if err := h.groups.Delete(c, groupID); err != nil {
		return h.mapGroupError(c, err)
	}
	return httputil.Success(c, nil)
}

// ListMine handles GET /api/v1/groups/mine.
func (h *GroupHandler) ListMine(c fiber.Ctx) error {
	caller, ok := userID(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}

	groups, err := h.groups.ListForUser(c, caller)
	if err != nil {
		h.log.Error().Err(err).Msg("list groups for user failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	out := make([]groupResponse, len(groups))
	for i := range groups {
		out[i] = toGroupResponse(&groups[i])
	}
	return httputil.Success(c, out)
}

// ownerScoped extracts the caller id and the :groupID path parameter shared
// by every owner-gated route.
func (h *GroupHandler) ownerScoped(c fiber.Ctx) (caller, groupID int64, ok bool) {
	caller, ok = userID(c)
	if !ok {
		return 0, 0, false
	}
	id, err := c.ParamsInt("groupID")
	if err != nil {
		return 0, 0, false
	}
	return caller, int64(id), true
}

// mapGroupError maps the group/waitinglist/authz sentinel errors to a status
// and apperr.Kind. Unrecognized errors are logged and surfaced as a generic
// internal error.
func (h *GroupHandler) mapGroupError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, group.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apperr.NotFound, "group not found")
	case errors.Is(err, group.ErrExpired):
		return httputil.Fail(c, fiber.StatusGone, apperr.NotFound, err.Error())
	case errors.Is(err, group.ErrAlreadyJoined):
		return httputil.Fail(c, fiber.StatusConflict, apperr.AlreadyJoined, err.Error())
	case errors.Is(err, group.ErrMaxMembers):
		return httputil.Fail(c, fiber.StatusConflict, apperr.ConstraintViolation, err.Error())
	case errors.Is(err, waitinglist.ErrAlreadyWaiting):
		return httputil.Fail(c, fiber.StatusConflict, apperr.AlreadyWaiting, err.Error())
	case errors.Is(err, waitinglist.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, apperr.NotFound, "waiting list entry not found")
	case errors.Is(err, authz.ErrForbidden):
		return httputil.Fail(c, fiber.StatusForbidden, apperr.Forbidden, "you do not own this group")
	case errors.Is(err, authz.ErrUnauthorized):
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "unknown user code")
	default:
		h.log.Error().Err(err).Msg("unhandled group handler error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}
}
