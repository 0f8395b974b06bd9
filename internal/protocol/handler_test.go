package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/pkg/proto"
)

type fakeConversation struct {
	sent     []*model.Message
	reads    [][2]string
	sendErr  error
	nextID   int64
	readErr  error
	lastSent *model.Message
}

func (f *fakeConversation) Send(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg.ID = f.nextID
	f.sent = append(f.sent, msg)
	f.lastSent = msg
	return msg, nil
}

func (f *fakeConversation) MarkRead(ctx context.Context, readerEmail, senderEmail string) error {
	if f.readErr != nil {
		return f.readErr
	}
	f.reads = append(f.reads, [2]string{readerEmail, senderEmail})
	return nil
}

type fakeContacts struct {
	added [][2]string
	err   error
}

func (f *fakeContacts) AddContact(ctx context.Context, adderEmail, addedEmail string) (*model.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, [2]string{adderEmail, addedEmail})
	return &model.Contact{ID: 1}, nil
}

type fakePresence struct {
	heartbeats []string
}

func (f *fakePresence) OnJoin(ctx context.Context, connID int64, email, deviceID, platform string) error {
	return nil
}
func (f *fakePresence) OnDisconnect(ctx context.Context, connID int64) error { return nil }
func (f *fakePresence) OnHeartbeat(ctx context.Context, email string) {
	f.heartbeats = append(f.heartbeats, email)
}

type fakeRouter struct {
	messages []*model.Message
	reads    [][2]string
}

func (f *fakeRouter) DeliverMessage(msg *model.Message) {
	f.messages = append(f.messages, msg)
}

func (f *fakeRouter) DeliverRead(readerEmail, senderEmail string) {
	f.reads = append(f.reads, [2]string{readerEmail, senderEmail})
}

type handlerFixture struct {
	h        *Handler
	convo    *fakeConversation
	contacts *fakeContacts
	presence *fakePresence
	router   *fakeRouter
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		convo:    &fakeConversation{},
		contacts: &fakeContacts{},
		presence: &fakePresence{},
		router:   &fakeRouter{},
	}
	f.h = NewHandler(nil, nil, f.presence, f.convo, f.contacts, f.router)
	return f
}

func decodeAck(t *testing.T, buf *bytes.Buffer) *proto.MessageAck {
	t.Helper()
	msgType, body, err := readFrame(buf)
	if err != nil {
		t.Fatalf("failed to read ack frame: %v", err)
	}
	if msgType != MsgTypeMessageAck {
		t.Fatalf("ack msgType = %d, want %d", msgType, MsgTypeMessageAck)
	}
	var ack proto.MessageAck
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatalf("failed to unmarshal ack: %v", err)
	}
	return &ack
}

func TestHandleSendStoresThenDelivers(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	sent := time.Now().UnixMilli()
	body, _ := json.Marshal(&proto.SendMessageRequest{
		ClientMsgID:   "c-1",
		ReceiverEmail: "bob@test.com",
		Body:          "hello",
		SentTime:      sent,
	})
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeMessage, body)

	if len(f.convo.sent) != 1 {
		t.Fatalf("stored %d messages, want 1", len(f.convo.sent))
	}
	msg := f.convo.sent[0]
	if msg.SenderEmail != "alice@test.com" {
		t.Error("sender identity must come from the connection, not the request")
	}
	if msg.SentTime.UnixMilli() != sent {
		t.Errorf("sent time = %d, want %d", msg.SentTime.UnixMilli(), sent)
	}

	if len(f.router.messages) != 1 || f.router.messages[0].ID != msg.ID {
		t.Fatal("message must be routed after storage")
	}

	ack := decodeAck(t, &buf)
	if ack.Code != apperrors.CodeSuccess || ack.ClientMsgID != "c-1" || ack.ServerMsgID != msg.ID {
		t.Errorf("ack wrong: %+v", ack)
	}
}

func TestHandleSendFailureSkipsDelivery(t *testing.T) {
	f := newHandlerFixture()
	f.convo.sendErr = apperrors.ErrCannotMessageSelf
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.SendMessageRequest{
		ClientMsgID:   "c-2",
		ReceiverEmail: "alice@test.com",
		Body:          "hi me",
	})
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeMessage, body)

	if len(f.router.messages) != 0 {
		t.Fatal("failed send must not be delivered")
	}
	ack := decodeAck(t, &buf)
	if ack.Code != apperrors.CodeCannotMessageSelf {
		t.Errorf("ack code = %d, want %d", ack.Code, apperrors.CodeCannotMessageSelf)
	}
}

func TestHandleSendValidatesRequest(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.SendMessageRequest{ClientMsgID: "c-3", Body: "no receiver"})
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeMessage, body)

	if len(f.convo.sent) != 0 {
		t.Fatal("invalid request must not reach the ledger")
	}
	if ack := decodeAck(t, &buf); ack.Code != apperrors.CodeInvalidParams {
		t.Errorf("ack code = %d, want %d", ack.Code, apperrors.CodeInvalidParams)
	}
}

func TestHandleSendFillsMissingSentTime(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.SendMessageRequest{
		ClientMsgID:   "c-4",
		ReceiverEmail: "bob@test.com",
		Body:          "no clock",
	})
	before := time.Now()
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeMessage, body)

	if f.convo.lastSent.SentTime.Before(before.Add(-time.Second)) {
		t.Error("missing sent time must be stamped server side")
	}
}

func TestHandleMarkReadRoutesReceipt(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.MarkReadRequest{SenderEmail: "alice@test.com"})
	f.h.handleFrame(context.Background(), "bob@test.com", &buf, MsgTypeMarkRead, body)

	if len(f.convo.reads) != 1 || f.convo.reads[0] != [2]string{"bob@test.com", "alice@test.com"} {
		t.Fatalf("MarkRead args wrong: %v", f.convo.reads)
	}
	if len(f.router.reads) != 1 || f.router.reads[0] != [2]string{"bob@test.com", "alice@test.com"} {
		t.Fatal("read receipt must be routed to the original sender")
	}
	if ack := decodeAck(t, &buf); ack.Code != apperrors.CodeSuccess {
		t.Errorf("ack code = %d", ack.Code)
	}
}

func TestHandleMarkReadFailureSkipsReceipt(t *testing.T) {
	f := newHandlerFixture()
	f.convo.readErr = apperrors.ErrDBError
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.MarkReadRequest{SenderEmail: "alice@test.com"})
	f.h.handleFrame(context.Background(), "bob@test.com", &buf, MsgTypeMarkRead, body)

	if len(f.router.reads) != 0 {
		t.Fatal("failed MarkRead must not emit a receipt")
	}
}

func TestHandleAddContact(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.AddContactRequest{FriendEmail: "bob@test.com"})
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeAddContact, body)

	if len(f.contacts.added) != 1 || f.contacts.added[0] != [2]string{"alice@test.com", "bob@test.com"} {
		t.Fatalf("AddContact args wrong: %v", f.contacts.added)
	}
	if ack := decodeAck(t, &buf); ack.Code != apperrors.CodeSuccess {
		t.Errorf("ack code = %d", ack.Code)
	}
}

func TestHandleAddContactError(t *testing.T) {
	f := newHandlerFixture()
	f.contacts.err = apperrors.ErrAlreadyFriends
	var buf bytes.Buffer

	body, _ := json.Marshal(&proto.AddContactRequest{FriendEmail: "bob@test.com"})
	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeAddContact, body)

	if ack := decodeAck(t, &buf); ack.Code != apperrors.CodeAlreadyFriends {
		t.Errorf("ack code = %d, want %d", ack.Code, apperrors.CodeAlreadyFriends)
	}
}

func TestHandleHeartbeat(t *testing.T) {
	f := newHandlerFixture()
	var buf bytes.Buffer

	f.h.handleFrame(context.Background(), "alice@test.com", &buf, MsgTypeHeartbeat, nil)

	if len(f.presence.heartbeats) != 1 || f.presence.heartbeats[0] != "alice@test.com" {
		t.Fatalf("heartbeat not forwarded: %v", f.presence.heartbeats)
	}
	msgType, _, err := readFrame(&buf)
	if err != nil || msgType != MsgTypeHeartbeat {
		t.Fatalf("heartbeat echo missing: type=%d err=%v", msgType, err)
	}
}
