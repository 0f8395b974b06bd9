package service

import (
	"context"
	"time"

	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/internal/repository"
)

// 服务层依赖的存储接口
// 依赖图是扁平的：服务只认识构造时注入的接口，不认识具体仓库类型

// UserStore 用户存储
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	SetOnline(ctx context.Context, email string) error
	SetOffline(ctx context.Context, email string, lastSeen time.Time) error
	UpdateProfile(ctx context.Context, email string, upd model.ProfileUpdate) error
}

// ChatStore 会话行存储
type ChatStore interface {
	Find(ctx context.Context, ownerEmail, peerEmail string) (*model.Chat, error)
	Insert(ctx context.Context, chat *model.Chat) error
	IncrementUnread(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error
	TouchLastMessage(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error
	ClearUnread(ctx context.Context, ownerEmail, peerEmail string) error
	SetPeerOnline(ctx context.Context, peerEmail string, online bool) error
	SetPeerPresence(ctx context.Context, peerEmail string, online bool, lastSeen time.Time) error
	UpdatePeerProfile(ctx context.Context, peerEmail string, upd model.ProfileUpdate) error
	ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Chat, error)
}

// MessageStore 消息存储
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	MarkViewed(ctx context.Context, senderEmail, receiverEmail string) error
	ListBetween(ctx context.Context, emailA, emailB string) ([]*model.Message, error)
}

// ContactStore 好友关系存储
type ContactStore interface {
	FindFriendship(ctx context.Context, emailA, emailB string) (*model.Contact, error)
	Create(ctx context.Context, contact *model.Contact) error
	ListForUser(ctx context.Context, email string) ([]*model.Contact, error)
	UpdateMemberProfile(ctx context.Context, email string, upd model.ProfileUpdate) error
}

// Stores 绑定到同一执行环境的一组存储
type Stores struct {
	Users    UserStore
	Chats    ChatStore
	Messages MessageStore
	Contacts ContactStore
}

// TxRunner 多语句事务原语
// fn 返回 nil 提交，否则整体回滚，半成品状态永远不可见
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx Stores) error) error
}

// storeAdapter 把仓库层 Store 适配成服务层的 Stores + TxRunner
type storeAdapter struct {
	store *repository.Store
}

// NewStoreAdapter 创建存储适配器
func NewStoreAdapter(store *repository.Store) (Stores, TxRunner) {
	return storesOf(store.Repos), &storeAdapter{store: store}
}

func storesOf(r repository.Repos) Stores {
	return Stores{
		Users:    r.Users,
		Chats:    r.Chats,
		Messages: r.Messages,
		Contacts: r.Contacts,
	}
}

func (a *storeAdapter) WithinTx(ctx context.Context, fn func(tx Stores) error) error {
	return a.store.WithinTx(ctx, func(tx repository.Repos) error {
		return fn(storesOf(tx))
	})
}
