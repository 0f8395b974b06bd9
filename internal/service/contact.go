package service

import (
	"context"
	"log/slog"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/internal/snowflake"
)

// ContactService 好友关系服务
// 好友关系与会话状态相互独立：加好友不建会话行，发消息不要求好友
type ContactService struct {
	stores Stores
	router *RouterService
	sf     *snowflake.Node
	logger *slog.Logger
}

// NewContactService 创建好友服务
func NewContactService(stores Stores, router *RouterService, sf *snowflake.Node) *ContactService {
	return &ContactService{
		stores: stores,
		router: router,
		sf:     sf,
		logger: slog.Default(),
	}
}

// AddContact 添加好友
// 双方资料在关系上各留一份展示快照，落库成功后通知被添加方
func (s *ContactService) AddContact(ctx context.Context, adderEmail, addedEmail string) (*model.Contact, error) {
	if adderEmail == addedEmail {
		return nil, apperrors.ErrCannotAddSelf
	}

	adder, err := s.stores.Users.GetByEmail(ctx, adderEmail)
	if err != nil {
		return nil, err
	}
	added, err := s.stores.Users.GetByEmail(ctx, addedEmail)
	if err != nil {
		return nil, err
	}

	existing, err := s.stores.Contacts.FindFriendship(ctx, adderEmail, addedEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrAlreadyFriends
	}

	contact := &model.Contact{
		ID:      s.sf.Generate().Int64(),
		MemberA: memberSnapshot(adder),
		MemberB: memberSnapshot(added),
	}
	if err := s.stores.Contacts.Create(ctx, contact); err != nil {
		return nil, err
	}

	s.logger.Info("Contact created", "contactId", contact.ID, "adder", adderEmail, "added", addedEmail)
	s.router.DeliverNewContact(contact, adderEmail)
	return contact, nil
}

// ListContacts 获取用户的好友列表
func (s *ContactService) ListContacts(ctx context.Context, email string) ([]*model.Contact, error) {
	return s.stores.Contacts.ListForUser(ctx, email)
}

func memberSnapshot(u *model.User) model.ContactMember {
	return model.ContactMember{
		Email:              u.Email,
		Name:               u.Name,
		AvatarRef:          u.AvatarRef,
		Residency:          u.Residency,
		LastSeenPermission: u.LastSeenPermission,
		LastSeenTime:       u.LastSeenTime,
	}
}
