package service

import (
	"context"
	"log/slog"

	"github.com/Heaven664/messenger-backend/internal/model"
)

// UserService 用户资料服务
type UserService struct {
	stores Stores
	tx     TxRunner
	logger *slog.Logger
}

// NewUserService 创建用户服务
func NewUserService(stores Stores, tx TxRunner) *UserService {
	return &UserService{
		stores: stores,
		tx:     tx,
		logger: slog.Default(),
	}
}

// GetByEmail 查询用户资料
func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.stores.Users.GetByEmail(ctx, email)
}

// UpdateProfile 更新用户资料
// 同一事务内同步所有冗余投影：会话行对端字段和好友关系成员快照
func (s *UserService) UpdateProfile(ctx context.Context, email string, upd model.ProfileUpdate) error {
	err := s.tx.WithinTx(ctx, func(tx Stores) error {
		if err := tx.Users.UpdateProfile(ctx, email, upd); err != nil {
			return err
		}
		if err := tx.Chats.UpdatePeerProfile(ctx, email, upd); err != nil {
			return err
		}
		return tx.Contacts.UpdateMemberProfile(ctx, email, upd)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Profile updated", "email", email)
	return nil
}
