package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tienphuckx/anony-box-backbone/internal/message"
)

// FrameType is the discriminator naming a wire protocol variant (spec.md §4.E).
type FrameType string

// Inbound frame types (client -> server).
const (
	FrameAuthenticate  FrameType = "Authenticate"
	FrameSend          FrameType = "Send"
	FrameEditMessage   FrameType = "EditMessage"
	FrameDeleteMessage FrameType = "DeleteMessage"
	FrameSeenMessages  FrameType = "SeenMessages"
)

// Outbound frame types (server -> client).
const (
	FrameAuthenticateResponse  FrameType = "AuthenticateResponse"
	FrameReceive               FrameType = "Receive"
	FrameEditMessageResponse   FrameType = "EditMessageResponse"
	FrameEditMessageData       FrameType = "EditMessageData"
	FrameDeleteMessageResponse FrameType = "DeleteMessageResponse"
	FrameDeleteMessageEvent    FrameType = "DeleteMessageEvent"
	FrameSeenMessagesResponse  FrameType = "SeenMessagesResponse"
	FrameSeenMessagesEvent     FrameType = "SeenMessagesEvent"
	FrameKicked                FrameType = "Kicked"
)

// Frame is the single JSON object envelope every protocol message uses: a
// discriminator naming the variant, plus its raw payload.
type Frame struct {
	Type FrameType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Authentication status codes (spec.md §4.E, stable contract).
const (
	AuthSuccess                = 0
	AuthTimeout                = 1
	AuthUnsupportedMessageType = 2
	AuthNoPermission           = 3
	AuthExpireOrNotFound       = 4
	AuthOther                  = 5
)

// AuthenticatePayload is the inbound Authenticate frame's payload: a bearer user code.
type AuthenticatePayload struct {
	UserCode string `json:"user_code"`
}

// AuthenticateResponse replies to an Authenticate frame, and doubles as the
// failure reply to a Send frame sent by a non-participant.
type AuthenticateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SendPayload is the inbound Send frame's payload.
type SendPayload struct {
	MessageUUID uuid.UUID                `json:"message_uuid"`
	GroupID     int64                    `json:"group_id"`
	MessageType *message.Type            `json:"message_type,omitempty"`
	Content     *string                  `json:"content,omitempty"`
	Attachments []message.NewAttachment  `json:"attachments,omitempty"`
}

// ReceiveEvent is broadcast to a group after a Send is persisted.
type ReceiveEvent struct {
	ID             int64                 `json:"id"`
	MessageUUID    uuid.UUID             `json:"message_uuid"`
	GroupID        int64                 `json:"group_id"`
	UserID         int64                 `json:"user_id"`
	AuthorUsername string                `json:"author_username"`
	Content        *string               `json:"content,omitempty"`
	MessageType    message.Type          `json:"message_type"`
	Status         message.Status        `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	Attachments    []message.Attachment  `json:"attachments,omitempty"`
}

// EditMessagePayload is the inbound EditMessage frame's payload.
type EditMessagePayload struct {
	MessageID   int64         `json:"message_id"`
	GroupID     int64         `json:"group_id"`
	Content     *string       `json:"content,omitempty"`
	MessageType *message.Type `json:"message_type,omitempty"`
}

// EditMessageResponse is sent only on the failure path of an EditMessage frame.
type EditMessageResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// EditMessageData is broadcast to a group after an EditMessage is persisted.
type EditMessageData struct {
	ID          int64         `json:"id"`
	MessageUUID uuid.UUID     `json:"message_uuid"`
	GroupID     int64         `json:"group_id"`
	Content     *string       `json:"content,omitempty"`
	MessageType message.Type  `json:"message_type"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DeleteMessagePayload is the inbound DeleteMessage frame's payload.
type DeleteMessagePayload struct {
	GroupID    int64   `json:"group_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// DeleteMessageResponse is sent if any id is not owned by the caller or the delete failed.
type DeleteMessageResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// DeleteMessageEvent is broadcast to a group after a DeleteMessage is persisted.
type DeleteMessageEvent struct {
	GroupID    int64   `json:"group_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// SeenMessagesPayload is the inbound SeenMessages frame's payload.
type SeenMessagesPayload struct {
	GroupID    int64   `json:"group_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// SeenMessagesResponse is sent only when a SeenMessages frame fails (validation
// or a failed status update).
type SeenMessagesResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SeenMessagesEvent is broadcast to a group after message statuses are set to Seen.
type SeenMessagesEvent struct {
	GroupID    int64   `json:"group_id"`
	MessageIDs []int64 `json:"message_ids"`
}

// KickedEvent is pushed directly to a removed participant's Directory entry
// (SPEC_FULL.md supplemented feature: member removal by the owner). The
// session's topic subscription is not torn down by this event; the
// Directory simply stops including the user in future targeted fan-out for
// the group.
type KickedEvent struct {
	GroupID int64 `json:"group_id"`
}

// Mutation response status codes (spec.md §6): 0 indicates success without an
// accompanying event; nonzero is a specific failure class.
const (
	StatusOK             = 0
	StatusInternalError  = 1
	StatusInvalidRequest = 2
)

// encodeFrame marshals a typed payload into a Frame envelope, ready to send
// as a single JSON text WebSocket message.
func encodeFrame(frameType FrameType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	return json.Marshal(Frame{Type: frameType, Data: data})
}
