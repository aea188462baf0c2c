package chat

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/store"
)

// SendInput carries a send-message intent from a connection.
type SendInput struct {
	SenderID   string
	SenderName string
	// RecipientID targets a direct send, GroupID a group send.
	RecipientID string
	GroupID     string
	Content     string
	MediaURL    string
	Kind        string
}

// Engine is the message fanout orchestrator. It persists a message through
// the collaborator and routes a copy to each recipient, choosing live
// delivery or a durable notification per recipient. Per-recipient delivery
// runs as an independent job on a fixed worker pool so one recipient's
// failure never blocks the others.
type Engine struct {
	db         *store.DB
	reg        *presence.Registry
	access     *Access
	logger     *zap.Logger
	workers    int
	previewLen int

	jobs   chan deliveryJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type deliveryJob struct {
	recipientID  string
	event        string
	payload      *MessagePayload
	notification *store.Notification
	done         *sync.WaitGroup
}

// NewEngine creates a fanout engine. workers sizes the delivery pool and
// previewLen bounds the notification content preview.
func NewEngine(db *store.DB, reg *presence.Registry, access *Access, logger *zap.Logger, workers, previewLen int) *Engine {
	return &Engine{
		db:         db,
		reg:        reg,
		access:     access,
		logger:     logger,
		workers:    workers,
		previewLen: previewLen,
		jobs:       make(chan deliveryJob),
	}
}

// Start launches the delivery workers.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(e.ctx)
	}
}

// Stop shuts the workers down after draining queued deliveries. In-flight
// fanout is never cancelled once the message is persisted.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case job := <-e.jobs:
			e.deliver(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-e.jobs:
					e.deliver(job)
				default:
					return
				}
			}
		}
	}
}

// SendDirect implements a direct send: find-or-create the chat, persist,
// then fan out to the other participant. Returns the payload for the
// sender's private-message-sent ack.
func (e *Engine) SendDirect(in SendInput) (*MessagePayload, error) {
	if err := validateSend(in.Content, in.MediaURL); err != nil {
		return nil, err
	}
	if in.RecipientID == "" || in.RecipientID == in.SenderID {
		return nil, Validationf("invalid recipient")
	}

	recipient, err := e.db.GetUser(in.RecipientID)
	if err != nil {
		return nil, Internalf(err, "load recipient")
	}
	if recipient == nil {
		return nil, NotFoundf("user %s not found", in.RecipientID)
	}

	c, err := e.db.FindOrCreateDirectChat(in.SenderID, in.RecipientID)
	if err != nil {
		return nil, Deliveryf(err, "resolve direct chat")
	}

	payload, err := e.persist(in, DirectRef(c.ID))
	if err != nil {
		return nil, err
	}

	if err := e.db.TouchDirectChat(c.ID, payload.CreatedAt); err != nil {
		// Best effort: the message is already durable.
		e.logger.Warn("failed to update chat activity", zap.String("chat_id", c.ID), zap.Error(err))
	}

	e.fanout([]string{in.RecipientID}, EvtReceivePrivateMessage, payload)
	return payload, nil
}

// SendGroup implements a group send: membership check, persist, then fan
// out to every member except the sender.
func (e *Engine) SendGroup(in SendInput) (*MessagePayload, error) {
	if err := validateSend(in.Content, in.MediaURL); err != nil {
		return nil, err
	}
	ref := GroupRef(in.GroupID)
	if err := e.access.Check(in.SenderID, ref); err != nil {
		return nil, err
	}

	payload, err := e.persist(in, ref)
	if err != nil {
		return nil, err
	}

	if err := e.db.TouchGroup(in.GroupID, payload.CreatedAt); err != nil {
		e.logger.Warn("failed to update group activity", zap.String("group_id", in.GroupID), zap.Error(err))
	}

	members, err := e.db.GroupMemberIDs(in.GroupID)
	if err != nil {
		// The message is persisted; failing to load the member list now is a
		// fanout failure, not a send failure.
		e.logger.Error("failed to load group members for fanout", zap.String("group_id", in.GroupID), zap.Error(err))
		return payload, nil
	}
	recipients := members[:0]
	for _, id := range members {
		if id != in.SenderID {
			recipients = append(recipients, id)
		}
	}

	e.fanout(recipients, EvtReceiveGroupMessage, payload)
	return payload, nil
}

func (e *Engine) persist(in SendInput, ref ChatRef) (*MessagePayload, error) {
	now := time.Now().UnixMilli()
	msg := &store.Message{
		ID:        uuid.New().String(),
		ChatID:    ref.ID,
		ChatKind:  ref.Kind,
		SenderID:  in.SenderID,
		Kind:      in.Kind,
		Body:      in.Content,
		MediaURL:  in.MediaURL,
		CreatedAt: now,
	}
	if msg.Kind == "" {
		msg.Kind = "text"
	}
	if err := e.db.SaveMessage(msg); err != nil {
		return nil, Deliveryf(err, "persist message")
	}

	return &MessagePayload{
		ID:         msg.ID,
		ChatID:     msg.ChatID,
		ChatType:   msg.ChatKind,
		SenderID:   msg.SenderID,
		SenderName: in.SenderName,
		Kind:       msg.Kind,
		Content:    msg.Body,
		MediaURL:   msg.MediaURL,
		CreatedAt:  msg.CreatedAt,
		ReadBy:     []ReadByEntry{{UserID: msg.SenderID, ReadAt: msg.CreatedAt}},
	}, nil
}

// fanout enqueues one delivery job per recipient and waits for the pool to
// finish them, so the sender ack follows completed fanout. Each job either
// delivers live or persists a notification, never both.
func (e *Engine) fanout(recipients []string, event string, payload *MessagePayload) {
	if len(recipients) == 0 {
		return
	}
	var done sync.WaitGroup
	done.Add(len(recipients))
	for _, recipientID := range recipients {
		job := deliveryJob{
			recipientID:  recipientID,
			event:        event,
			payload:      payload,
			notification: e.buildNotification(recipientID, payload),
			done:         &done,
		}
		select {
		case e.jobs <- job:
		case <-e.ctx.Done():
			// The pool is stopping; deliver on the caller so a send that
			// raced shutdown never blocks and the recipient still gets
			// exactly one of the two.
			e.deliver(job)
		}
	}
	done.Wait()
}

func (e *Engine) deliver(job deliveryJob) {
	defer job.done.Done()
	if conn, ok := e.reg.Lookup(job.recipientID); ok {
		if conn.Send(job.event, job.payload) {
			return
		}
		// Buffer full or connection on its way down: fall through so the
		// recipient still gets exactly one of the two.
	}
	if err := e.db.SaveNotification(job.notification); err != nil {
		// Isolated per recipient; the send as a whole already succeeded.
		e.logger.Error("failed to persist notification",
			zap.String("recipient_id", job.recipientID),
			zap.String("message_id", job.payload.ID),
			zap.Error(err))
	}
}

func (e *Engine) buildNotification(recipientID string, payload *MessagePayload) *store.Notification {
	return &store.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		SenderID:    payload.SenderID,
		Kind:        "message",
		Body:        e.summarize(payload),
		ChatID:      payload.ChatID,
		ChatKind:    payload.ChatType,
		MessageID:   payload.ID,
		CreatedAt:   payload.CreatedAt,
	}
}

// summarize produces the notification preview: text content truncated to
// the configured prefix with an ellipsis marker, non-text summarized by
// message type.
func (e *Engine) summarize(payload *MessagePayload) string {
	if payload.Kind != "text" {
		return "[" + payload.Kind + "]"
	}
	if utf8.RuneCountInString(payload.Content) <= e.previewLen {
		return payload.Content
	}
	runes := []rune(payload.Content)
	return string(runes[:e.previewLen]) + "…"
}

func validateSend(content, mediaURL string) error {
	if content == "" && mediaURL == "" {
		return Validationf("message content is empty")
	}
	return nil
}
