package model

import "time"

// User 用户实体
// 归属于身份子系统，核心只写在线状态相关字段（IsOnline / LastSeenTime）
type User struct {
	ID                 int64     `json:"id" db:"id"`
	Email              string    `json:"email" db:"email"`
	Name               string    `json:"name" db:"name"`
	AvatarRef          string    `json:"avatar_ref" db:"avatar_ref"`
	Residency          string    `json:"residency" db:"residency"`
	LastSeenPermission bool      `json:"last_seen_permission" db:"last_seen_permission"`
	LastSeenTime       time.Time `json:"last_seen_time" db:"last_seen_time"`
	IsOnline           bool      `json:"is_online" db:"is_online"`
}

// ProfileUpdate 资料变更字段
// 变更需要同步到所有把该用户作为对端的会话行和好友关系投影
type ProfileUpdate struct {
	Name      string `json:"name"`
	AvatarRef string `json:"avatar_ref"`
	Residency string `json:"residency"`
}

// UserLocation 用户连接位置信息（存储在 Redis，用于多端在线查询）
type UserLocation struct {
	Email     string    `json:"email"`
	NodeID    string    `json:"nodeId"`
	ConnID    int64     `json:"connId"`
	DeviceID  string    `json:"deviceId"`
	Platform  string    `json:"platform"`
	LoginTime time.Time `json:"loginTime"`
}
