package model

import "time"

// Chat 会话行：一个用户对一段双人会话的单向视图
// 每段 A、B 之间的会话恰好存在两行：owner=A/peer=B 和 owner=B/peer=A
// 对端展示字段（姓名、头像等）两行保持同步，UnreadCount 各自独立计数
type Chat struct {
	OwnerEmail             string    `json:"owner_email" db:"owner_email"`
	PeerEmail              string    `json:"peer_email" db:"peer_email"`
	PeerName               string    `json:"peer_name" db:"peer_name"`
	PeerAvatarRef          string    `json:"peer_avatar_ref" db:"peer_avatar_ref"`
	PeerResidency          string    `json:"peer_residency" db:"peer_residency"`
	LastMessageTime        time.Time `json:"last_message_time" db:"last_message_time"`
	UnreadCount            int       `json:"unread_count" db:"unread_count"`
	PeerLastSeenPermission bool      `json:"peer_last_seen_permission" db:"peer_last_seen_permission"`
	PeerLastSeenTime       time.Time `json:"peer_last_seen_time" db:"peer_last_seen_time"`
	PeerIsOnline           bool      `json:"peer_is_online" db:"peer_is_online"`
}
