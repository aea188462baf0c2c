package gateway

import (
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/chat"
	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/rooms"
	"github.com/avelar/chatd/internal/store"
)

// Deps are the domain collaborators a session drives.
type Deps struct {
	DB          *store.DB
	Registry    *presence.Registry
	Rooms       *rooms.Table
	Engine      *chat.Engine
	Broadcaster *chat.Broadcaster
	Receipts    *chat.Receipts
}

// session binds one authenticated user to one client connection and walks
// it through activation, the read loop, and unconditional teardown.
type session struct {
	deps    Deps
	user    *store.User
	client  *Client
	machine *stateMachine
	logger  *zap.Logger
}

func newSession(deps Deps, user *store.User, client *Client, machine *stateMachine, logger *zap.Logger) *session {
	return &session{
		deps:    deps,
		user:    user,
		client:  client,
		machine: machine,
		logger:  logger.With(zap.String("user_id", user.ID)),
	}
}

// run owns the connection until it dies. Teardown is deferred so a panic
// or an activation failure still releases presence, rooms, and status.
func (s *session) run() {
	go s.client.writePump()
	defer s.teardown()

	if err := s.activate(); err != nil {
		s.logger.Error("session activation failed", zap.Error(err))
		return
	}
	s.logger.Info("session active")
	s.readLoop()
}

// activate registers presence, superseding any previous connection for the
// same user, binds the session into its group rooms, flips the user online,
// and pushes the connect-time snapshot events.
func (s *session) activate() error {
	if err := s.machine.transition(StateActive); err != nil {
		return err
	}

	if prev := s.deps.Registry.Register(s.user.ID, s.client); prev != nil {
		// The older connection is ours to close; the registry never does it.
		s.logger.Info("superseding previous connection")
		prev.Close()
	}

	groups, err := s.deps.DB.GroupsOf(s.user.ID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		s.deps.Rooms.Join(rooms.GroupChannel(g.ID), s.client)
	}

	if err := s.deps.Broadcaster.SetStatus(s.user.ID, s.user.Username, chat.StatusOnline); err != nil {
		s.logger.Warn("failed to broadcast online status", zap.Error(err))
	}

	s.pushActiveFriends()
	s.pushUnreadCount()
	return nil
}

// pushActiveFriends sends the one-shot list of friends currently present.
func (s *session) pushActiveFriends() {
	friends, err := s.deps.DB.FriendsOf(s.user.ID)
	if err != nil {
		s.logger.Warn("failed to resolve friends", zap.Error(err))
		return
	}
	active := make([]chat.FriendPresence, 0, len(friends))
	for _, f := range friends {
		if _, ok := s.deps.Registry.Lookup(f.ID); ok {
			active = append(active, chat.FriendPresence{
				UserID:   f.ID,
				Username: f.Username,
				Status:   f.Status,
			})
		}
	}
	s.client.Send(chat.EvtActiveFriends, active)
}

func (s *session) pushUnreadCount() {
	count, err := s.deps.DB.UnreadNotificationCount(s.user.ID)
	if err != nil {
		s.logger.Warn("failed to count unread notifications", zap.Error(err))
		return
	}
	s.client.Send(chat.EvtUnreadNotifications, chat.UnreadCountPayload{Count: count})
}

func (s *session) readLoop() {
	s.client.prepareRead()
	for {
		data, err := s.client.readMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		s.dispatch(data)
	}
}

// teardown runs on every exit path. Rooms and the registry entry are
// released first; the offline transition is only broadcast if this session
// still owned the registry entry, so a superseded connection going away
// does not mark the newer one's user offline.
func (s *session) teardown() {
	_ = s.machine.transition(StateDisconnected)

	s.deps.Rooms.LeaveAll(s.client)
	if s.deps.Registry.Unregister(s.user.ID, s.client) {
		if err := s.deps.Broadcaster.SetStatus(s.user.ID, s.user.Username, chat.StatusOffline); err != nil {
			s.logger.Warn("failed to broadcast offline status", zap.Error(err))
		}
	}
	s.client.Close()
	s.logger.Info("session closed")
}
