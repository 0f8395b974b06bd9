package service

import (
	"context"
	"testing"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/snowflake"
)

func newTestContact(b *memBackend, pub *capturePublisher) *ContactService {
	return NewContactService(b.Stores(), NewRouterService(pub), snowflake.NewNode(1))
}

func TestAddContactCreatesFriendshipAndNotifies(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	pub := &capturePublisher{}
	svc := newTestContact(b, pub)

	contact, err := svc.AddContact(context.Background(), "alice@test.com", "bob@test.com")
	if err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if contact.ID == 0 {
		t.Fatal("contact must be assigned an ID")
	}
	if contact.MemberA.Email != "alice@test.com" || contact.MemberB.Email != "bob@test.com" {
		t.Fatalf("member snapshots wrong: %+v", contact)
	}
	if contact.MemberA.Name != "Alice" || contact.MemberB.AvatarRef != "avatars/bob.png" {
		t.Errorf("profile snapshots not copied: %+v", contact)
	}

	// 被添加方收到通知，添加方不收
	bobEvents := pub.eventsFor("bob@test.com")
	if len(bobEvents) != 1 || bobEvents[0].Payload.NewContact == nil {
		t.Fatalf("expected one new-contact event for bob, got %v", bobEvents)
	}
	nc := bobEvents[0].Payload.NewContact
	if nc.AdderEmail != "alice@test.com" || nc.AdderName != "Alice" {
		t.Errorf("new-contact payload wrong: %+v", nc)
	}
	if len(pub.eventsFor("alice@test.com")) != 0 {
		t.Error("adder must not receive a new-contact event")
	}
}

func TestAddContactSelf(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	svc := newTestContact(b, &capturePublisher{})

	if _, err := svc.AddContact(context.Background(), "alice@test.com", "alice@test.com"); !apperrors.Is(err, apperrors.ErrCannotAddSelf) {
		t.Fatalf("expected ErrCannotAddSelf, got %v", err)
	}
}

func TestAddContactUnknownUser(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	svc := newTestContact(b, &capturePublisher{})

	if _, err := svc.AddContact(context.Background(), "alice@test.com", "ghost@test.com"); !apperrors.Is(err, apperrors.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAddContactDuplicateEitherDirection(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	pub := &capturePublisher{}
	svc := newTestContact(b, pub)

	if _, err := svc.AddContact(context.Background(), "alice@test.com", "bob@test.com"); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if _, err := svc.AddContact(context.Background(), "alice@test.com", "bob@test.com"); !apperrors.Is(err, apperrors.ErrAlreadyFriends) {
		t.Fatalf("expected ErrAlreadyFriends, got %v", err)
	}
	if _, err := svc.AddContact(context.Background(), "bob@test.com", "alice@test.com"); !apperrors.Is(err, apperrors.ErrAlreadyFriends) {
		t.Fatalf("reversed duplicate: expected ErrAlreadyFriends, got %v", err)
	}

	contacts, _ := svc.ListContacts(context.Background(), "alice@test.com")
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
}

func TestAddContactDoesNotCreateChat(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	svc := newTestContact(b, &capturePublisher{})
	convo := newTestConversation(b)

	if _, err := svc.AddContact(context.Background(), "alice@test.com", "bob@test.com"); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if _, err := convo.FindChat(context.Background(), "alice@test.com", "bob@test.com"); !apperrors.Is(err, apperrors.ErrChatNotFound) {
		t.Fatal("friendship must not create chat rows")
	}
}

func TestAddContactSurvivesPublishFailure(t *testing.T) {
	b := newMemBackend()
	seedAliceBob(b)
	pub := &capturePublisher{failErr: context.DeadlineExceeded}
	svc := newTestContact(b, pub)

	contact, err := svc.AddContact(context.Background(), "alice@test.com", "bob@test.com")
	if err != nil {
		t.Fatalf("AddContact must succeed despite publish failure, got %v", err)
	}
	if contact == nil {
		t.Fatal("contact missing")
	}
}
