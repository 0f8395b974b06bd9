package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Heaven664/messenger-backend/internal/model"
)

// Binder 连接与用户身份的绑定器（由连接管理器实现）
// BindUser 返回该身份是否从 0 到 1，Remove 返回是否从 1 到 0，
// 判定和绑定在同一把锁下完成，多端并发时上下线各只翻转一次
type Binder interface {
	BindUser(connID int64, email string) bool
	Remove(connID int64) (email string, last bool)
}

// ContactLookup 好友查询（在线状态广播的受众来源）
type ContactLookup interface {
	ListForUser(ctx context.Context, email string) ([]*model.Contact, error)
}

// ChatProjection 会话行上的在线状态投影
type ChatProjection interface {
	SetPeerOnline(ctx context.Context, peerEmail string, online bool) error
	SetPeerPresence(ctx context.Context, peerEmail string, online bool, lastSeen time.Time) error
}

// PresenceStore 用户在线状态持久化
type PresenceStore interface {
	SetOnline(ctx context.Context, email string) error
	SetOffline(ctx context.Context, email string, lastSeen time.Time) error
}

// LocationRegistry 连接位置注册表（跨节点在线查询）
type LocationRegistry interface {
	Register(ctx context.Context, loc *model.UserLocation) error
	Unregister(ctx context.Context, email, nodeID string, connID int64) error
	Refresh(ctx context.Context, email string) error
}

// PresenceService 在线状态服务
// 先持久化再广播：好友收到上下线事件时，落库状态已经生效
type PresenceService struct {
	binder   Binder
	users    PresenceStore
	chats    ChatProjection
	contacts ContactLookup
	location LocationRegistry
	router   *RouterService
	nodeID   string
	logger   *slog.Logger
}

// NewPresenceService 创建在线状态服务
func NewPresenceService(
	binder Binder,
	users PresenceStore,
	chats ChatProjection,
	contacts ContactLookup,
	location LocationRegistry,
	router *RouterService,
	nodeID string,
) *PresenceService {
	return &PresenceService{
		binder:   binder,
		users:    users,
		chats:    chats,
		contacts: contacts,
		location: location,
		router:   router,
		nodeID:   nodeID,
		logger:   slog.Default(),
	}
}

// OnJoin 连接完成鉴权后调用
// 只有该身份的首个连接触发上线翻转；上线不动最后在线时间
func (s *PresenceService) OnJoin(ctx context.Context, connID int64, email, deviceID, platform string) error {
	first := s.binder.BindUser(connID, email)

	loc := &model.UserLocation{
		Email:     email,
		NodeID:    s.nodeID,
		ConnID:    connID,
		DeviceID:  deviceID,
		Platform:  platform,
		LoginTime: time.Now(),
	}
	if err := s.location.Register(ctx, loc); err != nil {
		s.logger.Warn("Failed to register user location", "email", email, "error", err)
	}

	if !first {
		s.logger.Debug("Additional connection for online user", "email", email, "connId", connID)
		return nil
	}

	if err := s.users.SetOnline(ctx, email); err != nil {
		return err
	}
	if err := s.chats.SetPeerOnline(ctx, email, true); err != nil {
		return err
	}

	s.logger.Info("User online", "email", email, "connId", connID)
	s.broadcastOnline(ctx, email)
	return nil
}

// OnDisconnect 连接关闭时调用（主动断开与心跳超时共用）
// 只有该身份的最后一个连接触发下线翻转并记录最后在线时间
func (s *PresenceService) OnDisconnect(ctx context.Context, connID int64) error {
	email, last := s.binder.Remove(connID)
	if email == "" {
		return nil
	}

	if err := s.location.Unregister(ctx, email, s.nodeID, connID); err != nil {
		s.logger.Warn("Failed to unregister user location", "email", email, "error", err)
	}

	if !last {
		s.logger.Debug("User still online on other connections", "email", email, "connId", connID)
		return nil
	}

	lastSeen := time.Now()
	if err := s.users.SetOffline(ctx, email, lastSeen); err != nil {
		return err
	}
	if err := s.chats.SetPeerPresence(ctx, email, false, lastSeen); err != nil {
		return err
	}

	s.logger.Info("User offline", "email", email, "connId", connID)
	s.broadcastOffline(ctx, email, lastSeen)
	return nil
}

// OnHeartbeat 收到心跳时刷新位置注册的过期时间
func (s *PresenceService) OnHeartbeat(ctx context.Context, email string) {
	if email == "" {
		return
	}
	if err := s.location.Refresh(ctx, email); err != nil {
		s.logger.Warn("Failed to refresh user location", "email", email, "error", err)
	}
}

func (s *PresenceService) broadcastOnline(ctx context.Context, email string) {
	emails, err := s.contactEmails(ctx, email)
	if err != nil {
		s.logger.Warn("Failed to load contacts for online broadcast", "email", email, "error", err)
		return
	}
	s.router.DeliverFriendOnline(email, emails)
}

func (s *PresenceService) broadcastOffline(ctx context.Context, email string, lastSeen time.Time) {
	emails, err := s.contactEmails(ctx, email)
	if err != nil {
		s.logger.Warn("Failed to load contacts for offline broadcast", "email", email, "error", err)
		return
	}
	s.router.DeliverFriendOffline(email, lastSeen, emails)
}

func (s *PresenceService) contactEmails(ctx context.Context, email string) ([]string, error) {
	contacts, err := s.contacts.ListForUser(ctx, email)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(contacts))
	for _, c := range contacts {
		emails = append(emails, c.Other(email).Email)
	}
	return emails, nil
}
