package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avelar/chatd/internal/auth"
	"github.com/avelar/chatd/internal/backplane"
	"github.com/avelar/chatd/internal/chat"
	"github.com/avelar/chatd/internal/config"
	"github.com/avelar/chatd/internal/presence"
	"github.com/avelar/chatd/internal/rooms"
	"github.com/avelar/chatd/internal/store"
)

type testEnv struct {
	ts   *httptest.Server
	db   *store.DB
	auth *auth.Authenticator
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.AuthSecret = "test-secret"
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	reg := presence.NewRegistry()
	tbl := rooms.NewTable()
	access := chat.NewAccess(db)

	engine := chat.NewEngine(db, reg, access, logger, cfg.FanoutWorkers, cfg.PreviewLength)
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	deps := Deps{
		DB:          db,
		Registry:    reg,
		Rooms:       tbl,
		Engine:      engine,
		Broadcaster: chat.NewBroadcaster(db, reg, tbl, backplane.Noop{}, logger),
		Receipts:    chat.NewReceipts(db, reg, access, logger),
	}
	authenticator := auth.New(cfg.AuthSecret, time.Hour, db)

	srv := NewServer(cfg, logger, authenticator, deps)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, db: db, auth: authenticator}
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
}

func (e *testEnv) mustUser(t *testing.T, id string) string {
	t.Helper()
	if err := e.db.CreateUser(&store.User{ID: id, Username: id}); err != nil {
		t.Fatal(err)
	}
	return e.auth.Mint(id, time.Now())
}

func (e *testEnv) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(token), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return env
}

// readUntil skips unrelated frames (presence churn and the like) until the
// wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) envelope {
	t.Helper()
	for i := 0; i < 16; i++ {
		env := readEvent(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("never received %q", event)
	return envelope{}
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(outEnvelope{Event: event, Data: payload}); err != nil {
		t.Fatal(err)
	}
}

func TestRejectsBadToken(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL("not-a-token"), nil)
	if err == nil {
		t.Fatal("dial succeeded with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v, want 401", resp)
	}
}

func TestRejectsDisallowedOrigin(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"http://good.example"}
	})
	token := env.mustUser(t, "alice")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), header); err == nil {
		t.Fatal("dial succeeded from a disallowed origin")
	}

	header = http.Header{"Origin": []string{"http://good.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(token), header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	_ = conn.Close()
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestConnectPushesSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.mustUser(t, "alice")
	env.mustUser(t, "bob")
	if err := env.db.AddFriendship("alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if err := env.db.SaveNotification(&store.Notification{
		ID: uuid.New().String(), RecipientID: "alice", SenderID: "bob",
		Kind: "message", Body: "hi", CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	conn := env.connect(t, token)

	env1 := readUntil(t, conn, chat.EvtActiveFriends)
	var friends []chat.FriendPresence
	if err := json.Unmarshal(env1.Data, &friends); err != nil {
		t.Fatal(err)
	}
	if len(friends) != 0 {
		t.Errorf("active friends = %+v, want none while bob is offline", friends)
	}

	env2 := readUntil(t, conn, chat.EvtUnreadNotifications)
	var count chat.UnreadCountPayload
	if err := json.Unmarshal(env2.Data, &count); err != nil {
		t.Fatal(err)
	}
	if count.Count != 1 {
		t.Errorf("unread count = %d, want 1", count.Count)
	}
}

func TestLivePrivateMessageBetweenSockets(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken := env.mustUser(t, "alice")
	bobToken := env.mustUser(t, "bob")
	if err := env.db.AddFriendship("alice", "bob"); err != nil {
		t.Fatal(err)
	}

	alice := env.connect(t, aliceToken)
	readUntil(t, alice, chat.EvtUnreadNotifications)

	bob := env.connect(t, bobToken)
	readUntil(t, bob, chat.EvtUnreadNotifications)

	// Alice sees bob come online.
	statusEnv := readUntil(t, alice, chat.EvtUserStatusChange)
	var status chat.StatusChangePayload
	if err := json.Unmarshal(statusEnv.Data, &status); err != nil {
		t.Fatal(err)
	}
	if status.UserID != "bob" || status.Status != chat.StatusOnline {
		t.Errorf("status change = %+v, want bob online", status)
	}

	writeEvent(t, bob, chat.EvtSendPrivateMessage, sendMessageRequest{
		RecipientID: "alice", Content: "hello alice",
	})

	ackEnv := readUntil(t, bob, chat.EvtPrivateMessageSent)
	var ack chat.MessagePayload
	if err := json.Unmarshal(ackEnv.Data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Content != "hello alice" || ack.SenderID != "bob" {
		t.Errorf("ack = %+v", ack)
	}

	recvEnv := readUntil(t, alice, chat.EvtReceivePrivateMessage)
	var recv chat.MessagePayload
	if err := json.Unmarshal(recvEnv.Data, &recv); err != nil {
		t.Fatal(err)
	}
	if recv.ID != ack.ID {
		t.Errorf("delivered id = %q, ack id = %q", recv.ID, ack.ID)
	}
	if len(recv.ReadBy) != 1 || recv.ReadBy[0].UserID != "bob" {
		t.Errorf("ReadBy = %+v, want the sender only", recv.ReadBy)
	}
}

func TestUnknownEventYieldsError(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.mustUser(t, "alice")

	conn := env.connect(t, token)
	readUntil(t, conn, chat.EvtUnreadNotifications)

	writeEvent(t, conn, "make-coffee", nil)

	errEnv := readUntil(t, conn, chat.EvtMessageError)
	var payload chat.ErrorPayload
	if err := json.Unmarshal(errEnv.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Code != chat.CodeValidation {
		t.Errorf("code = %q, want validation_error", payload.Code)
	}

	// The connection survives the rejection.
	writeEvent(t, conn, chat.EvtSetStatus, setStatusRequest{Status: chat.StatusAway})
	if _, err := env.db.GetUser("alice"); err != nil {
		t.Fatal(err)
	}
}

func TestSecondConnectionSupersedesFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.mustUser(t, "alice")

	first := env.connect(t, token)
	readUntil(t, first, chat.EvtUnreadNotifications)

	second := env.connect(t, token)
	readUntil(t, second, chat.EvtUnreadNotifications)

	// The superseded socket is closed by the server.
	_ = first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	// The newer session still works.
	writeEvent(t, second, chat.EvtSetStatus, setStatusRequest{Status: chat.StatusAway})

	deadline := time.Now().Add(3 * time.Second)
	for {
		u, err := env.db.GetUser("alice")
		if err != nil {
			t.Fatal(err)
		}
		if u.Status == chat.StatusAway {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want away", u.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	env := newTestEnv(t, nil)
	aliceToken := env.mustUser(t, "alice")
	bobToken := env.mustUser(t, "bob")
	if err := env.db.AddFriendship("alice", "bob"); err != nil {
		t.Fatal(err)
	}

	alice := env.connect(t, aliceToken)
	readUntil(t, alice, chat.EvtUnreadNotifications)

	bob := env.connect(t, bobToken)
	readUntil(t, bob, chat.EvtUnreadNotifications)
	readUntil(t, alice, chat.EvtUserStatusChange) // bob online

	_ = bob.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = bob.Close()

	statusEnv := readUntil(t, alice, chat.EvtUserStatusChange)
	var status chat.StatusChangePayload
	if err := json.Unmarshal(statusEnv.Data, &status); err != nil {
		t.Fatal(err)
	}
	if status.UserID != "bob" || status.Status != chat.StatusOffline {
		t.Errorf("status change = %+v, want bob offline", status)
	}
}
