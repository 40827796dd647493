package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/authz"
	"github.com/tienphuckx/anony-box-backbone/internal/group"
	"github.com/tienphuckx/anony-box-backbone/internal/message"
	"github.com/tienphuckx/anony-box-backbone/internal/user"
)

type stubUsers struct {
	byCode map[string]*user.User
}

func (s *stubUsers) CreateUser(ctx context.Context, username string) (*user.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubUsers) GetByCode(ctx context.Context, code string) (*user.User, error) {
	if u, ok := s.byCode[code]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (s *stubUsers) GetByID(ctx context.Context, id int64) (*user.User, error) {
	for _, u := range s.byCode {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

type stubGroups struct {
	group.Repository
	participants map[int64]map[int64]bool
	forUser      map[int64][]group.Group
}

func (s *stubGroups) IsParticipant(ctx context.Context, userID, groupID int64) (bool, error) {
	return s.participants[groupID][userID], nil
}

func (s *stubGroups) ListForUser(ctx context.Context, userID int64) ([]group.Group, error) {
	return s.forUser[userID], nil
}

type stubMessages struct {
	message.Repository
	inserted  *message.Message
	insertErr error
	byID      map[int64]*message.Message
	notOwned  map[int64][]int64
	deleted   bool
	statusSet []int64
}

func (s *stubMessages) InsertMessage(ctx context.Context, params message.CreateParams) (*message.Message, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return s.inserted, nil
}

func (s *stubMessages) GetByID(ctx context.Context, id int64) (*message.Message, error) {
	if m, ok := s.byID[id]; ok {
		return m, nil
	}
	return nil, message.ErrNotFound
}

func (s *stubMessages) UpdateMessage(ctx context.Context, id int64, params message.UpdateParams) (*message.Message, error) {
	m, ok := s.byID[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	if params.Content != nil {
		m.Content = params.Content
	}
	return m, nil
}

func (s *stubMessages) NotAuthoredBy(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	return s.notOwned[userID], nil
}

func (s *stubMessages) DeleteMessages(ctx context.Context, ids []int64) (bool, error) {
	return s.deleted, nil
}

func (s *stubMessages) SetStatus(ctx context.Context, ids []int64, status message.Status) error {
	s.statusSet = ids
	return nil
}

func newTestSession() *Session {
	return &Session{
		outbound: make(chan []byte, 10),
		done:     make(chan struct{}),
		log:      zerolog.Nop(),
	}
}

func readFrame(t *testing.T, s *Session) Frame {
	t.Helper()
	select {
	case raw := <-s.outbound:
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return f
	default:
		t.Fatal("expected a frame on the outbound channel, got none")
		return Frame{}
	}
}

func TestDispatcherAuthenticate(t *testing.T) {
	t.Parallel()

	users := &stubUsers{byCode: map[string]*user.User{"abc": {ID: 1, Username: "alice", UserCode: "abc"}}}
	a := authz.New(users, &stubGroups{})
	d := NewDispatcher(a, &stubGroups{}, &stubMessages{}, NewHub(10), NewDirectory(), 500, zerolog.Nop())

	userID, username, code, err := d.Authenticate("abc")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if userID != 1 || username != "alice" || code != AuthSuccess {
		t.Errorf("Authenticate() = (%d, %q, %d), want (1, alice, AuthSuccess)", userID, username, code)
	}

	_, _, code, err = d.Authenticate("unknown")
	if err == nil || code != AuthExpireOrNotFound {
		t.Errorf("Authenticate(unknown) = (code=%d, err=%v), want AuthExpireOrNotFound error", code, err)
	}
}

func TestDispatcherGroupsOf(t *testing.T) {
	t.Parallel()

	groups := &stubGroups{forUser: map[int64][]group.Group{1: {{ID: 10}, {ID: 20}}}}
	d := NewDispatcher(authz.New(&stubUsers{}, groups), groups, &stubMessages{}, NewHub(10), NewDirectory(), 500, zerolog.Nop())

	ids, err := d.GroupsOf(1)
	if err != nil {
		t.Fatalf("GroupsOf() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("GroupsOf() = %v, want [10 20]", ids)
	}
}

func TestDispatcherHandleSendRejectsNonParticipant(t *testing.T) {
	t.Parallel()

	groups := &stubGroups{participants: map[int64]map[int64]bool{10: {}}}
	d := NewDispatcher(authz.New(&stubUsers{}, groups), groups, &stubMessages{}, NewHub(10), NewDirectory(), 500, zerolog.Nop())

	s := newTestSession()
	payload, _ := json.Marshal(SendPayload{GroupID: 10, MessageUUID: uuid.New()})

	d.HandleSend(s, 1, "alice", payload)

	f := readFrame(t, s)
	if f.Type != FrameAuthenticateResponse {
		t.Fatalf("frame type = %v, want FrameAuthenticateResponse", f.Type)
	}
	var resp AuthenticateResponse
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != AuthNoPermission {
		t.Errorf("resp.Code = %d, want AuthNoPermission", resp.Code)
	}
}

func TestDispatcherHandleSendBroadcastsOnSuccess(t *testing.T) {
	t.Parallel()

	groups := &stubGroups{participants: map[int64]map[int64]bool{10: {1: true}}}
	content := "hello group"
	msgs := &stubMessages{inserted: &message.Message{
		ID:          99,
		GroupID:     10,
		UserID:      1,
		Content:     &content,
		MessageType: message.TypeText,
		Status:      message.StatusSent,
		CreatedAt:   time.Now(),
	}}
	hub := NewHub(10)
	ch, _ := hub.TopicFor(10).Subscribe()
	d := NewDispatcher(authz.New(&stubUsers{}, groups), groups, msgs, hub, NewDirectory(), 500, zerolog.Nop())

	s := newTestSession()
	payload, _ := json.Marshal(SendPayload{GroupID: 10, MessageUUID: uuid.New(), Content: &content})
	d.HandleSend(s, 1, "alice", payload)

	select {
	case raw := <-ch:
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal broadcast frame: %v", err)
		}
		if f.Type != FrameReceive {
			t.Errorf("broadcast frame type = %v, want FrameReceive", f.Type)
		}
	default:
		t.Fatal("expected a broadcast on the group topic")
	}
}

func TestDispatcherHandleDeleteMessageRejectsNonOwner(t *testing.T) {
	t.Parallel()

	msgs := &stubMessages{notOwned: map[int64][]int64{1: {7}}}
	groups := &stubGroups{}
	d := NewDispatcher(authz.New(&stubUsers{}, groups), groups, msgs, NewHub(10), NewDirectory(), 500, zerolog.Nop())

	s := newTestSession()
	payload, _ := json.Marshal(DeleteMessagePayload{GroupID: 10, MessageIDs: []int64{7}})
	d.HandleDeleteMessage(s, 1, payload)

	f := readFrame(t, s)
	if f.Type != FrameDeleteMessageResponse {
		t.Fatalf("frame type = %v, want FrameDeleteMessageResponse", f.Type)
	}
	var resp DeleteMessageResponse
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != StatusInvalidRequest {
		t.Errorf("resp.Code = %d, want StatusInvalidRequest", resp.Code)
	}
}

func TestDispatcherHandleSeenMessagesRejectsMixedGroups(t *testing.T) {
	t.Parallel()

	groups := &stubGroups{participants: map[int64]map[int64]bool{10: {1: true}}}
	msgs := &stubMessages{byID: map[int64]*message.Message{
		1: {ID: 1, GroupID: 10},
		2: {ID: 2, GroupID: 11},
	}}
	d := NewDispatcher(authz.New(&stubUsers{}, groups), groups, msgs, NewHub(10), NewDirectory(), 500, zerolog.Nop())

	s := newTestSession()
	payload, _ := json.Marshal(SeenMessagesPayload{GroupID: 10, MessageIDs: []int64{1, 2}})
	d.HandleSeenMessages(s, 1, payload)

	f := readFrame(t, s)
	var resp SeenMessagesResponse
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Code != StatusInvalidRequest {
		t.Errorf("resp.Code = %d, want StatusInvalidRequest", resp.Code)
	}
	if len(msgs.statusSet) != 0 {
		t.Error("SetStatus should not have been called for a mixed-group batch")
	}
}
