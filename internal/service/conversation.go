package service

import (
	"context"
	"log/slog"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/internal/snowflake"
)

// ConversationService 会话状态引擎
// 发送、已读都是单个事务：要么全部生效，要么全部回滚
type ConversationService struct {
	stores Stores
	tx     TxRunner
	sf     *snowflake.Node
	logger *slog.Logger
}

// NewConversationService 创建会话服务
func NewConversationService(stores Stores, tx TxRunner, sf *snowflake.Node) *ConversationService {
	return &ConversationService{
		stores: stores,
		tx:     tx,
		sf:     sf,
		logger: slog.Default(),
	}
}

// Send 发送私聊消息
// 事务内完成：会话行不存在时惰性创建两行（发送方未读 0 / 接收方未读 1），
// 存在时接收方行未读数原子 +1，两行刷新最后消息时间，最后落库消息本体。
// 每条消息落库前从发送方资料补全头像快照。
// 成功返回已赋 ID 的消息实体，由调用方触发下行投递
func (s *ConversationService) Send(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.SenderEmail == msg.ReceiverEmail {
		return nil, apperrors.ErrCannotMessageSelf
	}

	msg.ID = s.sf.Generate().Int64()
	msg.Viewed = false

	err := s.tx.WithinTx(ctx, func(tx Stores) error {
		sender, err := tx.Users.GetByEmail(ctx, msg.SenderEmail)
		if err != nil {
			return err
		}
		if msg.SenderAvatarRef == "" {
			msg.SenderAvatarRef = sender.AvatarRef
		}

		senderRow, err := tx.Chats.Find(ctx, msg.SenderEmail, msg.ReceiverEmail)
		if err != nil {
			return err
		}

		if senderRow == nil {
			if err := s.createChatPair(ctx, tx, sender, msg); err != nil {
				return err
			}
		} else {
			if err := tx.Chats.IncrementUnread(ctx, msg.ReceiverEmail, msg.SenderEmail, msg.SentTime); err != nil {
				return err
			}
			if err := tx.Chats.TouchLastMessage(ctx, msg.SenderEmail, msg.ReceiverEmail, msg.SentTime); err != nil {
				return err
			}
		}

		return tx.Messages.Insert(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Message stored",
		"msgId", msg.ID,
		"sender", msg.SenderEmail,
		"receiver", msg.ReceiverEmail,
	)
	return msg, nil
}

// createChatPair 首条消息惰性创建会话行对
// 两行在同一事务内插入，永远不会出现只有单行的会话
func (s *ConversationService) createChatPair(ctx context.Context, tx Stores, sender *model.User, msg *model.Message) error {
	receiver, err := tx.Users.GetByEmail(ctx, msg.ReceiverEmail)
	if err != nil {
		return err
	}

	senderRow := &model.Chat{
		OwnerEmail:             sender.Email,
		PeerEmail:              receiver.Email,
		PeerName:               receiver.Name,
		PeerAvatarRef:          receiver.AvatarRef,
		PeerResidency:          receiver.Residency,
		LastMessageTime:        msg.SentTime,
		UnreadCount:            0,
		PeerLastSeenPermission: receiver.LastSeenPermission,
		PeerLastSeenTime:       receiver.LastSeenTime,
		PeerIsOnline:           receiver.IsOnline,
	}
	receiverRow := &model.Chat{
		OwnerEmail:             receiver.Email,
		PeerEmail:              sender.Email,
		PeerName:               sender.Name,
		PeerAvatarRef:          sender.AvatarRef,
		PeerResidency:          sender.Residency,
		LastMessageTime:        msg.SentTime,
		UnreadCount:            1,
		PeerLastSeenPermission: sender.LastSeenPermission,
		PeerLastSeenTime:       sender.LastSeenTime,
		PeerIsOnline:           sender.IsOnline,
	}

	if err := tx.Chats.Insert(ctx, senderRow); err != nil {
		return err
	}
	return tx.Chats.Insert(ctx, receiverRow)
}

// MarkRead 读者把与 senderEmail 的会话标记为已读
// 清零自己会话行的未读数并把对方发来的消息置为已读，天然幂等
func (s *ConversationService) MarkRead(ctx context.Context, readerEmail, senderEmail string) error {
	return s.tx.WithinTx(ctx, func(tx Stores) error {
		if err := tx.Chats.ClearUnread(ctx, readerEmail, senderEmail); err != nil {
			return err
		}
		return tx.Messages.MarkViewed(ctx, senderEmail, readerEmail)
	})
}

// FindChat 查找单个会话行
func (s *ConversationService) FindChat(ctx context.Context, ownerEmail, peerEmail string) (*model.Chat, error) {
	chat, err := s.stores.Chats.Find(ctx, ownerEmail, peerEmail)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, apperrors.ErrChatNotFound
	}
	return chat, nil
}

// ListChats 获取用户的会话列表（按最后消息时间倒序）
func (s *ConversationService) ListChats(ctx context.Context, ownerEmail string) ([]*model.Chat, error) {
	return s.stores.Chats.ListByOwner(ctx, ownerEmail)
}

// ListMessages 获取两个用户之间的历史消息（按发送时间升序）
func (s *ConversationService) ListMessages(ctx context.Context, emailA, emailB string) ([]*model.Message, error) {
	if _, err := s.stores.Users.GetByEmail(ctx, emailA); err != nil {
		return nil, err
	}
	if _, err := s.stores.Users.GetByEmail(ctx, emailB); err != nil {
		return nil, err
	}
	return s.stores.Messages.ListBetween(ctx, emailA, emailB)
}
