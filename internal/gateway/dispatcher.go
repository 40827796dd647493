// Package gateway implements the real-time core: the Group Hub Registry
// (component C), the Client Session (component D), the Protocol Dispatcher
// (component E), and the Connection Directory (component F) from
// spec.md §4.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/group"
	"github.com/tienphuckx/anony-box-backbone/internal/message"
	"github.com/tienphuckx/anony-box-backbone/internal/sanitize"
)

// Dispatcher decodes inbound frames, enforces authorization, persists the
// resulting state transition, and broadcasts the outcome (spec.md §4.E).
// Every mutating handler re-checks authorization against the Store rather
// than trusting cached session state.
type Dispatcher struct {
	authz      *authz.Authorizer
	groups     group.Repository
	messages   message.Repository
	hub        *Hub
	directory  *Directory
	maxContent int
	log        zerolog.Logger
}

// NewDispatcher creates a Dispatcher wired to its collaborators.
func NewDispatcher(a *authz.Authorizer, groups group.Repository, messages message.Repository, hub *Hub, directory *Directory, maxContentRunes int, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		authz:      a,
		groups:     groups,
		messages:   messages,
		hub:        hub,
		directory:  directory,
		maxContent: maxContentRunes,
		log:        logger,
	}
}

// requestTimeout bounds each individual mutating operation the dispatcher performs.
const requestTimeout = 10 * time.Second

// Authenticate resolves a bearer user code, returning the resolved identity
// or an authentication status code per spec.md §4.E's stable contract.
func (d *Dispatcher) Authenticate(userCode string) (userID int64, username string, code int, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	u, rerr := d.authz.ResolveUserCode(ctx, userCode)
	if rerr != nil {
		if errors.Is(rerr, authz.ErrUnauthorized) {
			return 0, "", AuthExpireOrNotFound, errors.New("unknown user code")
		}
		d.log.Error().Err(rerr).Msg("authenticate: resolve user code failed")
		return 0, "", AuthOther, errors.New("internal error")
	}
	return u.ID, u.Username, AuthSuccess, nil
}

// GroupsOf returns the ids of every group userID currently participates in.
func (d *Dispatcher) GroupsOf(userID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	groups, err := d.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids, nil
}

// HandleSend processes a Send frame: check participant, insert message and
// attachments, broadcast Receive to the group.
func (d *Dispatcher) HandleSend(s *Session, userID int64, username string, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var payload SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.closeWithCode(CloseDecodeError, "invalid Send payload")
		return
	}

	if err := d.authz.RequireParticipant(ctx, userID, payload.GroupID); err != nil {
		d.replyNoPermission(s, err)
		return
	}

	msgType := message.TypeText
	if payload.MessageType != nil {
		msgType = *payload.MessageType
	}

	var content *string
	if payload.Content != nil {
		clean := sanitize.Content(*payload.Content)
		validated, verr := message.ValidateContent(clean, d.maxContent)
		if verr != nil {
			s.sendAuthenticateResponse(AuthOther, verr.Error())
			return
		}
		content = &validated
	}

	if payload.MessageUUID == uuid.Nil {
		payload.MessageUUID = uuid.New()
	}

	msg, err := d.messages.InsertMessage(ctx, message.CreateParams{
		MessageUUID: payload.MessageUUID,
		GroupID:     payload.GroupID,
		UserID:      userID,
		Content:     content,
		MessageType: msgType,
		Attachments: payload.Attachments,
	})
	if err != nil {
		d.log.Error().Err(err).Msg("send: insert message failed")
		return
	}

	event := ReceiveEvent{
		ID:             msg.ID,
		MessageUUID:    msg.MessageUUID,
		GroupID:        msg.GroupID,
		UserID:         msg.UserID,
		AuthorUsername: username,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		Status:         msg.Status,
		CreatedAt:      msg.CreatedAt,
		Attachments:    msg.Attachments,
	}
	d.broadcast(msg.GroupID, FrameReceive, event)
}

// HandleEditMessage processes an EditMessage frame: check author, update,
// broadcast EditMessageData.
func (d *Dispatcher) HandleEditMessage(s *Session, userID int64, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var payload EditMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.closeWithCode(CloseDecodeError, "invalid EditMessage payload")
		return
	}

	existing, err := d.messages.GetByID(ctx, payload.MessageID)
	if err != nil {
		d.reply(s, FrameEditMessageResponse, EditMessageResponse{Code: StatusInvalidRequest, Msg: "message not found"})
		return
	}
	if existing.UserID != userID || existing.GroupID != payload.GroupID {
		d.reply(s, FrameEditMessageResponse, EditMessageResponse{Code: StatusInvalidRequest, Msg: message.ErrNotAuthor.Error()})
		return
	}

	var content *string
	if payload.Content != nil {
		clean := sanitize.Content(*payload.Content)
		validated, verr := message.ValidateContent(clean, d.maxContent)
		if verr != nil {
			d.reply(s, FrameEditMessageResponse, EditMessageResponse{Code: StatusInvalidRequest, Msg: verr.Error()})
			return
		}
		content = &validated
	}

	updated, err := d.messages.UpdateMessage(ctx, payload.MessageID, message.UpdateParams{
		Content:     content,
		MessageType: payload.MessageType,
	})
	if err != nil {
		d.log.Error().Err(err).Msg("edit message: update failed")
		d.reply(s, FrameEditMessageResponse, EditMessageResponse{Code: StatusInternalError, Msg: "internal error"})
		return
	}

	var updatedAt time.Time
	if updated.UpdatedAt != nil {
		updatedAt = *updated.UpdatedAt
	}
	d.broadcast(updated.GroupID, FrameEditMessageData, EditMessageData{
		ID:          updated.ID,
		MessageUUID: updated.MessageUUID,
		GroupID:     updated.GroupID,
		Content:     updated.Content,
		MessageType: updated.MessageType,
		UpdatedAt:   updatedAt,
	})
}

// HandleDeleteMessage processes a DeleteMessage frame: not_authored_by must
// be empty, delete, broadcast DeleteMessageEvent.
func (d *Dispatcher) HandleDeleteMessage(s *Session, userID int64, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var payload DeleteMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.closeWithCode(CloseDecodeError, "invalid DeleteMessage payload")
		return
	}

	notOwned, err := d.messages.NotAuthoredBy(ctx, userID, payload.MessageIDs)
	if err != nil {
		d.log.Error().Err(err).Msg("delete message: ownership check failed")
		d.reply(s, FrameDeleteMessageResponse, DeleteMessageResponse{Code: StatusInternalError, Msg: "internal error"})
		return
	}
	if len(notOwned) > 0 {
		msg := fmt.Sprintf("Invalid message ids, maybe user are not owner of messages: %v", notOwned)
		d.reply(s, FrameDeleteMessageResponse, DeleteMessageResponse{Code: StatusInvalidRequest, Msg: msg})
		return
	}

	ok, err := d.messages.DeleteMessages(ctx, payload.MessageIDs)
	if err != nil || !ok {
		d.log.Error().Err(err).Msg("delete message: delete failed")
		d.reply(s, FrameDeleteMessageResponse, DeleteMessageResponse{Code: StatusInternalError, Msg: "internal error"})
		return
	}

	d.broadcast(payload.GroupID, FrameDeleteMessageEvent, DeleteMessageEvent{
		GroupID:    payload.GroupID,
		MessageIDs: payload.MessageIDs,
	})
}

// HandleSeenMessages processes a SeenMessages frame: check participant, every
// message must belong to group_id, set status=Seen, broadcast
// SeenMessagesEvent.
func (d *Dispatcher) HandleSeenMessages(s *Session, userID int64, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var payload SeenMessagesPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.closeWithCode(CloseDecodeError, "invalid SeenMessages payload")
		return
	}

	if err := d.authz.RequireParticipant(ctx, userID, payload.GroupID); err != nil {
		d.reply(s, FrameSeenMessagesResponse, SeenMessagesResponse{Code: StatusInvalidRequest, Msg: "not a participant"})
		return
	}

	for _, id := range payload.MessageIDs {
		msg, err := d.messages.GetByID(ctx, id)
		if err != nil || msg.GroupID != payload.GroupID {
			d.reply(s, FrameSeenMessagesResponse, SeenMessagesResponse{Code: StatusInvalidRequest, Msg: message.ErrMixedGroups.Error()})
			return
		}
	}

	if err := d.messages.SetStatus(ctx, payload.MessageIDs, message.StatusSeen); err != nil {
		d.log.Error().Err(err).Msg("seen messages: set status failed")
		d.reply(s, FrameSeenMessagesResponse, SeenMessagesResponse{Code: StatusInternalError, Msg: "internal error"})
		return
	}

	d.broadcast(payload.GroupID, FrameSeenMessagesEvent, SeenMessagesEvent{
		GroupID:    payload.GroupID,
		MessageIDs: payload.MessageIDs,
	})
}

// broadcast encodes an event and publishes it to groupID's Topic. The
// broadcast is issued only after the Store has confirmed commit; a broadcast
// failure never rolls back the persisted record (spec.md §4.E).
func (d *Dispatcher) broadcast(groupID int64, frameType FrameType, event any) {
	frame, err := encodeFrame(frameType, event)
	if err != nil {
		d.log.Error().Err(err).Str("frame_type", string(frameType)).Msg("failed to encode broadcast frame")
		return
	}
	d.hub.Publish(groupID, frame)
}

// NotifyUser delivers payload directly to userID's live session, if any,
// bypassing group topic subscription. Used to reach a participant who was
// just removed from a group and would otherwise miss a topic publish.
func (d *Dispatcher) NotifyUser(userID int64, frameType FrameType, event any) {
	frame, err := encodeFrame(frameType, event)
	if err != nil {
		d.log.Error().Err(err).Str("frame_type", string(frameType)).Msg("failed to encode direct notification")
		return
	}
	d.directory.PublishToGroup([]int64{userID}, frame)
}

func (d *Dispatcher) reply(s *Session, frameType FrameType, payload any) {
	frame, err := encodeFrame(frameType, payload)
	if err != nil {
		d.log.Error().Err(err).Str("frame_type", string(frameType)).Msg("failed to encode reply frame")
		return
	}
	s.enqueue(frame)
}

func (d *Dispatcher) replyNoPermission(s *Session, cause error) {
	d.reply(s, FrameAuthenticateResponse, AuthenticateResponse{Code: AuthNoPermission, Msg: cause.Error()})
}
