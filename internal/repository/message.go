package repository

import (
	"context"

	"github.com/Heaven664/messenger-backend/internal/model"
)

// MessageRepository 消息数据访问
type MessageRepository struct {
	db DB
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Insert 追加消息
func (r *MessageRepository) Insert(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, sender_email, receiver_email, body, sender_avatar_ref, sent_time, viewed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.SenderEmail,
		msg.ReceiverEmail,
		msg.Body,
		msg.SenderAvatarRef,
		msg.SentTime,
		msg.Viewed,
	)
	return err
}

// MarkViewed 把 sender -> receiver 的所有未读消息标记为已读
// viewed 只会 false→true，重复调用是空操作
func (r *MessageRepository) MarkViewed(ctx context.Context, senderEmail, receiverEmail string) error {
	query := `
		UPDATE messages SET viewed = TRUE
		WHERE sender_email = $1 AND receiver_email = $2 AND viewed = FALSE
	`
	_, err := r.db.Exec(ctx, query, senderEmail, receiverEmail)
	return err
}

// ListBetween 获取两个用户之间的全部消息（按发送时间排序）
func (r *MessageRepository) ListBetween(ctx context.Context, emailA, emailB string) ([]*model.Message, error) {
	query := `
		SELECT id, sender_email, receiver_email, body, sender_avatar_ref, sent_time, viewed
		FROM messages
		WHERE (sender_email = $1 AND receiver_email = $2)
		   OR (sender_email = $2 AND receiver_email = $1)
		ORDER BY sent_time
	`
	rows, err := r.db.Query(ctx, query, emailA, emailB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.SenderEmail,
			&msg.ReceiverEmail,
			&msg.Body,
			&msg.SenderAvatarRef,
			&msg.SentTime,
			&msg.Viewed,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
