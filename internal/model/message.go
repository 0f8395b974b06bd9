package model

import "time"

// Message 消息实体
// 除 Viewed（false→true，单调且幂等）外不可变，按 SentTime 排序
type Message struct {
	ID              int64     `json:"id" db:"id"`
	SenderEmail     string    `json:"sender_email" db:"sender_email"`
	ReceiverEmail   string    `json:"receiver_email" db:"receiver_email"`
	Body            string    `json:"body" db:"body"`
	SenderAvatarRef string    `json:"sender_avatar_ref" db:"sender_avatar_ref"`
	SentTime        time.Time `json:"sent_time" db:"sent_time"`
	Viewed          bool      `json:"viewed" db:"viewed"`
}
