package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Heaven664/messenger-backend/internal/model"
)

// SubjectProfileUpdated 身份子系统发布的用户资料变更
const SubjectProfileUpdated = "chat.user.profile.updated"

// ProfileStore 资料变更的应用方（用户服务实现）
type ProfileStore interface {
	UpdateProfile(ctx context.Context, email string, upd model.ProfileUpdate) error
}

// profileEvent 资料变更事件载荷
type profileEvent struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatarRef"`
	Residency string `json:"residency"`
}

// ProfileSubscriber 订阅资料变更并同步到所有冗余投影
type ProfileSubscriber struct {
	nc           *nats.Conn
	users        ProfileStore
	logger       *slog.Logger
	subscription *nats.Subscription
}

// NewProfileSubscriber 创建资料变更订阅器
func NewProfileSubscriber(nc *nats.Conn, users ProfileStore) *ProfileSubscriber {
	return &ProfileSubscriber{
		nc:     nc,
		users:  users,
		logger: slog.Default(),
	}
}

// Start 启动订阅
func (s *ProfileSubscriber) Start() error {
	sub, err := s.nc.Subscribe(SubjectProfileUpdated, func(msg *nats.Msg) {
		var event profileEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error("Failed to unmarshal profile event", "error", err)
			return
		}
		if event.Email == "" {
			s.logger.Warn("Profile event without email dropped")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.users.UpdateProfile(ctx, event.Email, model.ProfileUpdate{
			Name:      event.Name,
			AvatarRef: event.AvatarRef,
			Residency: event.Residency,
		}); err != nil {
			s.logger.Error("Failed to apply profile update", "email", event.Email, "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.subscription = sub
	s.logger.Info("Profile subscriber started", "subject", SubjectProfileUpdated)
	return nil
}

// Stop 停止订阅
func (s *ProfileSubscriber) Stop() {
	if s.subscription != nil {
		if err := s.subscription.Unsubscribe(); err != nil {
			s.logger.Error("Failed to unsubscribe profile events", "error", err)
		}
	}
}
