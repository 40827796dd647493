package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

// Phase is a Session's position in its one-way state machine (spec.md §4.D).
type Phase int32

const (
	PhaseOpened Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseOpened:
		return "Opened"
	case PhaseAuthenticating:
		return "Authenticating"
	case PhaseAuthenticated:
		return "Authenticated"
	case PhaseClosing:
		return "Closing"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// maxMessageSize bounds a single inbound WebSocket frame.
const maxMessageSize = 1 << 16

// writeWait is the time allowed to write a single frame to the peer.
const writeWait = 10 * time.Second

// Session is a single WebSocket connection's full lifecycle: the Opened ->
// Authenticating -> Authenticated -> Closing -> Closed state machine, its two
// cooperating pumps, and its personal outbound channel (spec.md §4.D).
type Session struct {
	conn       *websocket.Conn
	dispatcher *Dispatcher
	hub        *Hub
	log        zerolog.Logger

	authTimeout time.Duration

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	phase atomic.Int32

	mu            sync.RWMutex
	userID        int64
	username      string
	subscriptions map[int64]topicSubscription
}

// topicSubscription records a per-group Topic subscription so it can be torn
// down cleanly when the session closes.
type topicSubscription struct {
	topic *Topic
	id    uint64
}

// NewSession creates a Session in the Opened phase.
func NewSession(conn *websocket.Conn, dispatcher *Dispatcher, hub *Hub, logger zerolog.Logger, outboundBuffer int, authTimeout time.Duration) *Session {
	if outboundBuffer <= 0 {
		outboundBuffer = defaultTopicBacklog
	}
	return &Session{
		conn:          conn,
		dispatcher:    dispatcher,
		hub:           hub,
		log:           logger,
		authTimeout:   authTimeout,
		outbound:      make(chan []byte, outboundBuffer),
		done:          make(chan struct{}),
		subscriptions: make(map[int64]topicSubscription),
	}
}

// UserID returns the authenticated user id, or 0 before authentication.
func (s *Session) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// currentPhase returns the session's current phase.
func (s *Session) currentPhase() Phase {
	return Phase(s.phase.Load())
}

// setPhase advances the session's phase. Callers are responsible for only
// making forward (one-way) transitions.
func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// Serve runs the session to completion: it starts the outbound pump, then
// runs the inbound pump on the calling goroutine until the connection ends.
// Serve blocks until both pumps have exited and teardown is complete.
func (s *Session) Serve() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.outboundPump()
	}()

	s.inboundPump()
	s.teardown()
	wg.Wait()
}

// enqueue writes a frame to the session's personal outbound channel. If the
// session is already shutting down (done is closed) the write is silently
// dropped. If the channel is
// full, the overflow policy applies: the session is terminated (spec.md
// §4.D, §5 Backpressure).
func (s *Session) enqueue(payload []byte) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.outbound <- payload:
	case <-s.done:
	default:
		s.log.Warn().Int64("user_id", s.UserID()).Msg("outbound channel overflowed, closing session")
		s.closeWithCode(CloseOutboundOverflow, "outbound buffer overflow")
	}
}

// closeWithCode sends a close frame with the given code and reason, signals
// teardown, then closes the underlying connection so a blocked ReadMessage in
// inboundPump unblocks with an error. Safe to call multiple times or
// concurrently.
func (s *Session) closeWithCode(code int, reason string) {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		close(s.done)
		_ = s.conn.Close()
	})
}

// inboundPump reads transport frames. The first frame only is subject to the
// authentication deadline and must be an Authenticate frame; subsequent
// frames are decoded and dispatched. Exits on close frame, a frame that is not
// valid JSON, a failed or missing authentication, an unrecognized frame type,
// or a transport error.
func (s *Session) inboundPump() {
	s.setPhase(PhaseAuthenticating)
	s.conn.SetReadLimit(maxMessageSize)

	authTimer := time.AfterFunc(s.authTimeout, func() {
		if s.currentPhase() != PhaseAuthenticated {
			s.log.Debug().Msg("session did not authenticate within the deadline")
			if frame, err := encodeFrame(FrameAuthenticateResponse, AuthenticateResponse{Code: AuthTimeout, Msg: ErrAuthTimeout.Error()}); err == nil {
				_ = s.writeFrame(frame)
			}
			s.closeWithCode(CloseAuthTimeout, "authentication timeout")
		}
	})
	defer authTimer.Stop()

	first := true
	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		if msgType != websocket.TextMessage {
			if first {
				first = false
				authTimer.Stop()
				s.sendAuthenticateResponse(AuthUnsupportedMessageType, "first frame must be a text Authenticate frame")
				s.closeWithCode(CloseAuthFailed, "first frame must be Authenticate")
				return
			}
			s.log.Debug().Int("message_type", msgType).Msg("ignoring non-text frame")
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.closeWithCode(CloseDecodeError, "invalid JSON frame")
			return
		}

		if first {
			first = false
			authTimer.Stop()
			if frame.Type != FrameAuthenticate {
				s.sendAuthenticateResponse(AuthUnsupportedMessageType, "first frame must be Authenticate")
				s.closeWithCode(CloseAuthFailed, "first frame must be Authenticate")
				return
			}
			if !s.handleAuthenticate(frame.Data) {
				return
			}
			continue
		}

		if frame.Type == FrameAuthenticate {
			s.sendAuthenticateResponse(AuthOther, ErrAlreadyAuth.Error())
			continue
		}

		s.dispatch(frame)
	}
}

// outboundPump reads from the outbound channel and writes each event as a
// JSON text frame. Exits when a write fails, or once the session is done and
// the frames already buffered have been written.
func (s *Session) outboundPump() {
	for {
		select {
		case payload, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.writeFrame(payload); err != nil {
				s.log.Debug().Err(err).Msg("outbound write failed")
				s.closeWithCode(CloseUnknownError, "write error")
				return
			}
		case <-s.done:
			// Drain whatever is already buffered so the peer sees it before the socket closes.
			for {
				select {
				case payload, ok := <-s.outbound:
					if !ok {
						return
					}
					_ = s.writeFrame(payload)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeFrame(payload []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// handleAuthenticate resolves the bearer user code, subscribes the session to
// the Topics of every group the user currently participates in, and
// transitions to Authenticated. Returns false if the session should close.
func (s *Session) handleAuthenticate(data json.RawMessage) bool {
	var payload AuthenticatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.sendAuthenticateResponse(AuthOther, "malformed authenticate payload")
		s.closeWithCode(CloseDecodeError, "invalid authenticate payload")
		return false
	}

	userID, username, code, err := s.dispatcher.Authenticate(payload.UserCode)
	if err != nil {
		s.sendAuthenticateResponse(code, err.Error())
		s.closeWithCode(CloseAuthFailed, "authentication failed")
		return false
	}

	groupIDs, err := s.dispatcher.GroupsOf(userID)
	if err != nil {
		s.sendAuthenticateResponse(AuthOther, "failed to load group membership")
		s.closeWithCode(CloseUnknownError, "internal error")
		return false
	}

	s.mu.Lock()
	s.userID = userID
	s.username = username
	for _, gid := range groupIDs {
		s.subscribeToGroup(gid)
	}
	s.mu.Unlock()

	s.setPhase(PhaseAuthenticated)
	s.dispatcher.directory.Put(userID, s)
	s.sendAuthenticateResponse(AuthSuccess, "authenticated")
	return true
}

// subscribeToGroup subscribes the session to groupID's Topic and starts a
// forwarder goroutine that copies published events into the outbound
// channel until the subscription is torn down. Callers must hold s.mu.
func (s *Session) subscribeToGroup(groupID int64) {
	if _, ok := s.subscriptions[groupID]; ok {
		return
	}
	topic := s.hub.TopicFor(groupID)
	ch, id := topic.Subscribe()
	s.subscriptions[groupID] = topicSubscription{topic: topic, id: id}

	go func() {
		for {
			select {
			case payload, ok := <-ch:
				if !ok {
					// The Topic closes the channel on overflow (and on
					// Unsubscribe, which only happens after done is closed).
					select {
					case <-s.done:
					default:
						s.log.Warn().Msg("group topic backlog overflowed, closing session")
						s.closeWithCode(CloseTopicOverflow, "topic backlog overflow")
					}
					return
				}
				s.enqueue(payload)
			case <-s.done:
				return
			}
		}
	}()
}

// sendAuthenticateResponse enqueues an AuthenticateResponse frame.
func (s *Session) sendAuthenticateResponse(code int, msg string) {
	frame, err := encodeFrame(FrameAuthenticateResponse, AuthenticateResponse{Code: code, Msg: msg})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build authenticate response")
		return
	}
	s.enqueue(frame)
}

// dispatch routes a post-authentication frame to the Protocol Dispatcher.
func (s *Session) dispatch(frame Frame) {
	if s.currentPhase() != PhaseAuthenticated {
		s.closeWithCode(CloseAuthFailed, "not authenticated")
		return
	}

	userID, username := s.identity()

	switch frame.Type {
	case FrameSend:
		s.dispatcher.HandleSend(s, userID, username, frame.Data)
	case FrameEditMessage:
		s.dispatcher.HandleEditMessage(s, userID, frame.Data)
	case FrameDeleteMessage:
		s.dispatcher.HandleDeleteMessage(s, userID, frame.Data)
	case FrameSeenMessages:
		s.dispatcher.HandleSeenMessages(s, userID, frame.Data)
	default:
		s.closeWithCode(CloseUnknownFrameType, "unrecognized frame type")
	}
}

func (s *Session) identity() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.username
}

// teardown runs once both pumps are known to be exiting: the phase is
// advanced to Closing then Closed, every group subscription is released, the
// directory entry is removed, and the connection is closed. The outbound
// channel is left open; done signals shutdown to the outbound pump.
func (s *Session) teardown() {
	s.setPhase(PhaseClosing)
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	subs := s.subscriptions
	s.subscriptions = nil
	userID := s.userID
	s.mu.Unlock()

	for groupID, sub := range subs {
		sub.topic.Unsubscribe(sub.id)
		_ = groupID
	}

	if userID != 0 {
		s.dispatcher.directory.Remove(userID, s)
	}

	// The outbound channel is never closed directly: enqueue and outboundPump
	// both select on s.done to detect shutdown, which avoids a send-on-a-
	// closed-channel panic if a forwarder races teardown.
	_ = s.conn.Close()
	s.setPhase(PhaseClosed)
}
