package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Heaven664/messenger-backend/internal/model"
)

// ChatRepository 会话行数据访问
type ChatRepository struct {
	db DB
}

// NewChatRepository 创建会话仓库
func NewChatRepository(db DB) *ChatRepository {
	return &ChatRepository{db: db}
}

const chatColumns = `owner_email, peer_email, peer_name, peer_avatar_ref, peer_residency,
	last_message_time, unread_count, peer_last_seen_permission, peer_last_seen_time, peer_is_online`

func scanChat(row pgx.Row) (*model.Chat, error) {
	chat := &model.Chat{}
	err := row.Scan(
		&chat.OwnerEmail,
		&chat.PeerEmail,
		&chat.PeerName,
		&chat.PeerAvatarRef,
		&chat.PeerResidency,
		&chat.LastMessageTime,
		&chat.UnreadCount,
		&chat.PeerLastSeenPermission,
		&chat.PeerLastSeenTime,
		&chat.PeerIsOnline,
	)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Find 查找会话行，不存在时返回 (nil, nil)
func (r *ChatRepository) Find(ctx context.Context, ownerEmail, peerEmail string) (*model.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE owner_email = $1 AND peer_email = $2`
	chat, err := scanChat(r.db.QueryRow(ctx, query, ownerEmail, peerEmail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// Insert 插入单个会话行
func (r *ChatRepository) Insert(ctx context.Context, chat *model.Chat) error {
	query := `
		INSERT INTO chats (` + chatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		chat.OwnerEmail,
		chat.PeerEmail,
		chat.PeerName,
		chat.PeerAvatarRef,
		chat.PeerResidency,
		chat.LastMessageTime,
		chat.UnreadCount,
		chat.PeerLastSeenPermission,
		chat.PeerLastSeenTime,
		chat.PeerIsOnline,
	)
	return err
}

// IncrementUnread 接收方会话行未读数 +1 并刷新最后消息时间
// 单条原子 SQL，并发发送时计数不会丢失
func (r *ChatRepository) IncrementUnread(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error {
	query := `
		UPDATE chats SET unread_count = unread_count + 1, last_message_time = $3
		WHERE owner_email = $1 AND peer_email = $2
	`
	_, err := r.db.Exec(ctx, query, ownerEmail, peerEmail, lastMessageTime)
	return err
}

// TouchLastMessage 刷新会话行的最后消息时间
func (r *ChatRepository) TouchLastMessage(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error {
	query := `
		UPDATE chats SET last_message_time = $3
		WHERE owner_email = $1 AND peer_email = $2
	`
	_, err := r.db.Exec(ctx, query, ownerEmail, peerEmail, lastMessageTime)
	return err
}

// ClearUnread 清零会话行未读数（幂等）
func (r *ChatRepository) ClearUnread(ctx context.Context, ownerEmail, peerEmail string) error {
	query := `UPDATE chats SET unread_count = 0 WHERE owner_email = $1 AND peer_email = $2`
	_, err := r.db.Exec(ctx, query, ownerEmail, peerEmail)
	return err
}

// SetPeerOnline 只翻转在线标记，不动最后在线时间（上线路径）
func (r *ChatRepository) SetPeerOnline(ctx context.Context, peerEmail string, online bool) error {
	query := `UPDATE chats SET peer_is_online = $2 WHERE peer_email = $1`
	_, err := r.db.Exec(ctx, query, peerEmail, online)
	return err
}

// SetPeerPresence 更新所有以该用户为对端的会话行的在线状态投影
func (r *ChatRepository) SetPeerPresence(ctx context.Context, peerEmail string, online bool, lastSeen time.Time) error {
	query := `
		UPDATE chats SET peer_is_online = $2, peer_last_seen_time = $3
		WHERE peer_email = $1
	`
	_, err := r.db.Exec(ctx, query, peerEmail, online, lastSeen)
	return err
}

// UpdatePeerProfile 更新所有以该用户为对端的会话行的资料投影
func (r *ChatRepository) UpdatePeerProfile(ctx context.Context, peerEmail string, upd model.ProfileUpdate) error {
	query := `
		UPDATE chats SET peer_name = $2, peer_avatar_ref = $3, peer_residency = $4
		WHERE peer_email = $1
	`
	_, err := r.db.Exec(ctx, query, peerEmail, upd.Name, upd.AvatarRef, upd.Residency)
	return err
}

// ListByOwner 获取用户的会话列表（按最后消息时间倒序）
func (r *ChatRepository) ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Chat, error) {
	query := `
		SELECT ` + chatColumns + ` FROM chats
		WHERE owner_email = $1
		ORDER BY last_message_time DESC
	`
	rows, err := r.db.Query(ctx, query, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
