package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/apperr"
	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
	"github.com/tienphuckx/anony-box-backbone/internal/message"
)

// MessageHandler serves message history retrieval.
type MessageHandler struct {
	messages message.Repository
	authz    *authz.Authorizer
	log      zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages message.Repository, a *authz.Authorizer, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, authz: a, log: logger}
}

type attachmentResponse struct {
	ID             int64               `json:"id"`
	URL            string              `json:"url"`
	AttachmentType message.AttachmentType `json:"attachment_type"`
}

type messageResponse struct {
	ID             int64                `json:"id"`
	MessageUUID    string               `json:"message_uuid"`
	GroupID        int64                `json:"group_id"`
	UserID         int64                `json:"user_id"`
	AuthorUsername string               `json:"author_username"`
	Content        *string              `json:"content,omitempty"`
	MessageType    message.Type         `json:"message_type"`
	Status         message.Status       `json:"status"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      *string              `json:"updated_at,omitempty"`
	Attachments    []attachmentResponse `json:"attachments,omitempty"`
}

func toMessageResponse(m *message.Message) messageResponse {
	resp := messageResponse{
		ID:             m.ID,
		MessageUUID:    m.MessageUUID.String(),
		GroupID:        m.GroupID,
		UserID:         m.UserID,
		AuthorUsername: m.AuthorUsername,
		Content:        m.Content,
		MessageType:    m.MessageType,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.UpdatedAt != nil {
		formatted := m.UpdatedAt.Format(time.RFC3339)
		resp.UpdatedAt = &formatted
	}
	if len(m.Attachments) > 0 {
		resp.Attachments = make([]attachmentResponse, len(m.Attachments))
		for i, a := range m.Attachments {
			resp.Attachments[i] = attachmentResponse{ID: a.ID, URL: a.URL, AttachmentType: a.AttachmentType}
		}
	}
	return resp
}

type listMessagesResponse struct {
	Messages []messageResponse `json:"messages"`
	Total    int64             `json:"total"`
}

// List handles GET /api/v1/groups/:groupID/messages. Participant only.
//
// Query params: message_type, content_contains, status, from, to (RFC3339),
// sort (ASC|DESC, default DESC), page, limit.
func (h *MessageHandler) List(c fiber.Ctx) error {
	caller, ok := userID(c)
	if !ok {
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "missing identity")
	}

	groupID, err := c.ParamsInt("groupID")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, apperr.MissingField, "invalid group id")
	}

	if err := h.authz.RequireParticipant(c, caller, int64(groupID)); err != nil {
		return h.mapMessageError(c, err)
	}

	filter := message.Filter{}
	if v := c.Query("message_type"); v != "" {
		t := message.Type(v)
		filter.MessageType = &t
	}
	if v := c.Query("content_contains"); v != "" {
		filter.ContentContains = &v
	}
	if v := c.Query("status"); v != "" {
		s := message.Status(v)
		filter.Status = &s
	}
	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			filter.FromDate = &parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			filter.ToDate = &parsed
		}
	}

	sort := message.SortDesc
	if c.Query("sort") == string(message.SortAsc) {
		sort = message.SortAsc
	}

	page := message.Page{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", message.DefaultLimit),
	}.Normalize()

	msgs, err := h.messages.ListMessages(c, int64(groupID), filter, sort, page)
	if err != nil {
		h.log.Error().Err(err).Msg("list messages failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	total, err := h.messages.CountMessages(c, int64(groupID), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("count messages failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}

	out := make([]messageResponse, len(msgs))
	for i := range msgs {
		out[i] = toMessageResponse(&msgs[i])
	}
	return httputil.Success(c, listMessagesResponse{Messages: out, Total: total})
}

func (h *MessageHandler) mapMessageError(c fiber.Ctx, err error) error {
	switch {
	case err == authz.ErrForbidden:
		return httputil.Fail(c, fiber.StatusForbidden, apperr.Forbidden, "you are not a participant of this group")
	case err == authz.ErrUnauthorized:
		return httputil.Fail(c, fiber.StatusUnauthorized, apperr.Unauthorized, "unknown user code")
	default:
		h.log.Error().Err(err).Msg("unhandled message handler error")
		return httputil.Fail(c, fiber.StatusInternalServerError, apperr.Unknown, "internal error")
	}
}
