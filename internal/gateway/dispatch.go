package gateway

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/chat"
	"github.com/avelar/chatd/internal/rooms"
)

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	GroupID     string `json:"groupId"`
	Content     string `json:"content"`
	MediaURL    string `json:"mediaUrl"`
	MessageType string `json:"messageType"`
}

type typingRequest struct {
	ChatID   string `json:"chatId"`
	ChatType string `json:"chatType"`
}

type markReadRequest struct {
	MessageID string `json:"messageId"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// dispatch decodes one inbound frame and routes it. A handler error is
// reported once to this connection as a message-error event and the
// connection stays up; a handler panic is contained the same way.
func (s *session) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(chat.Validationf("malformed frame"))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				zap.String("event", env.Event), zap.Any("panic", r))
			s.sendError(chat.Internalf(nil, "internal error"))
		}
	}()

	if err := s.handle(env); err != nil {
		s.logger.Warn("event rejected",
			zap.String("event", env.Event),
			zap.String("code", string(chat.CodeOf(err))),
			zap.Error(err))
		s.sendError(err)
	}
}

func (s *session) handle(env envelope) error {
	switch env.Event {
	case chat.EvtSendPrivateMessage:
		return s.onSendPrivate(env.Data)
	case chat.EvtSendGroupMessage:
		return s.onSendGroup(env.Data)
	case chat.EvtTypingStart:
		return s.onTyping(env.Data, true)
	case chat.EvtTypingEnd:
		return s.onTyping(env.Data, false)
	case chat.EvtMarkAsRead:
		return s.onMarkRead(env.Data)
	case chat.EvtMarkAllAsRead:
		return s.onMarkAllRead(env.Data)
	case chat.EvtSetStatus:
		return s.onSetStatus(env.Data)
	case chat.EvtJoinGroup:
		return s.onJoinGroup(env.Data)
	case chat.EvtLeaveGroup:
		return s.onLeaveGroup(env.Data)
	case chat.EvtNotificationRead:
		return s.onNotificationRead(env.Data)
	default:
		return chat.Validationf("unknown event %q", env.Event)
	}
}

func (s *session) sendError(err error) {
	s.client.Send(chat.EvtMessageError, chat.ErrorPayload{
		Code:  chat.CodeOf(err),
		Error: chat.MessageOf(err),
	})
}

// ack confirms a completed operation to this connection. The work is
// already durable at this point, so a full send buffer only loses the
// confirmation; that loss is logged, not retried.
func (s *session) ack(event string, payload any) {
	if !s.client.Send(event, payload) {
		s.logger.Warn("sender ack dropped", zap.String("event", event))
	}
}

func (s *session) onSendPrivate(data json.RawMessage) error {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chat.Validationf("malformed payload")
	}
	payload, err := s.deps.Engine.SendDirect(chat.SendInput{
		SenderID:    s.user.ID,
		SenderName:  s.user.Username,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		Kind:        req.MessageType,
	})
	if err != nil {
		return err
	}
	s.ack(chat.EvtPrivateMessageSent, payload)
	return nil
}

func (s *session) onSendGroup(data json.RawMessage) error {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chat.Validationf("malformed payload")
	}
	payload, err := s.deps.Engine.SendGroup(chat.SendInput{
		SenderID:   s.user.ID,
		SenderName: s.user.Username,
		GroupID:    req.GroupID,
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		Kind:       req.MessageType,
	})
	if err != nil {
		return err
	}
	s.ack(chat.EvtGroupMessageSent, payload)
	return nil
}

func (s *session) onTyping(data json.RawMessage, active bool) error {
	var req typingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chat.Validationf("malformed payload")
	}
	ref := chat.ChatRef{Kind: req.ChatType, ID: req.ChatID}
	if !ref.Valid() {
		return chat.Validationf("invalid chat reference")
	}
	return s.deps.Broadcaster.Typing(s.user.ID, ref, active)
}

func (s *session) onMarkRead(data json.RawMessage) error {
	var req markReadRequest
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == "" {
		return chat.Validationf("malformed payload")
	}
	return s.deps.Receipts.MarkRead(s.user.ID, req.MessageID)
}

func (s *session) onMarkAllRead(data json.RawMessage) error {
	var req typingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chat.Validationf("malformed payload")
	}
	ref := chat.ChatRef{Kind: req.ChatType, ID: req.ChatID}
	if !ref.Valid() {
		return chat.Validationf("invalid chat reference")
	}
	return s.deps.Receipts.MarkAllRead(s.user.ID, ref)
}

func (s *session) onSetStatus(data json.RawMessage) error {
	var req setStatusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chat.Validationf("malformed payload")
	}
	return s.deps.Broadcaster.SetStatus(s.user.ID, s.user.Username, req.Status)
}

// onJoinGroup revalidates membership against the store before binding the
// room: group membership may have changed since connect.
func (s *session) onJoinGroup(data json.RawMessage) error {
	groupID, err := decodeID(data)
	if err != nil {
		return err
	}
	g, err := s.deps.DB.GetGroup(groupID)
	if err != nil {
		return chat.Internalf(err, "load group")
	}
	if g == nil {
		return chat.NotFoundf("group %s not found", groupID)
	}
	member, err := s.deps.DB.IsGroupMember(s.user.ID, groupID)
	if err != nil {
		return chat.Internalf(err, "check membership")
	}
	if !member {
		return chat.Unauthorizedf("not a member of group %s", groupID)
	}
	s.deps.Rooms.Join(rooms.GroupChannel(groupID), s.client)
	s.ack(chat.EvtJoinedGroup, chat.GroupAckPayload{GroupID: groupID})
	return nil
}

// onLeaveGroup never fails: leaving a room the connection was never in is
// acknowledged the same as a real leave.
func (s *session) onLeaveGroup(data json.RawMessage) error {
	groupID, err := decodeID(data)
	if err != nil {
		return err
	}
	s.deps.Rooms.Leave(rooms.GroupChannel(groupID), s.client)
	s.ack(chat.EvtLeftGroup, chat.GroupAckPayload{GroupID: groupID})
	return nil
}

func (s *session) onNotificationRead(data json.RawMessage) error {
	id, err := decodeID(data)
	if err != nil {
		return err
	}
	ok, err := s.deps.DB.MarkNotificationRead(id, s.user.ID)
	if err != nil {
		return chat.Internalf(err, "mark notification read")
	}
	if !ok {
		return chat.NotFoundf("notification %s not found", id)
	}
	return nil
}

// decodeID accepts either a bare JSON string or {"id": "..."}.
func decodeID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.ID != "" {
		return obj.ID, nil
	}
	return "", chat.Validationf("malformed payload")
}
