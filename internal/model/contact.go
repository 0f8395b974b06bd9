package model

import "time"

// ContactMember 好友关系中一方的展示快照
type ContactMember struct {
	Email              string    `json:"email" db:"email"`
	Name               string    `json:"name" db:"name"`
	AvatarRef          string    `json:"avatar_ref" db:"avatar_ref"`
	Residency          string    `json:"residency" db:"residency"`
	LastSeenPermission bool      `json:"last_seen_permission" db:"last_seen_permission"`
	LastSeenTime       time.Time `json:"last_seen_time" db:"last_seen_time"`
}

// Contact 好友关系（无序对）
// 与会话状态相互独立；成员展示字段是冗余投影，随用户资料变更同步更新
type Contact struct {
	ID      int64         `json:"id" db:"id"`
	MemberA ContactMember `json:"member_a"`
	MemberB ContactMember `json:"member_b"`
}

// Other 返回好友关系中 email 对端的成员快照
func (c *Contact) Other(email string) ContactMember {
	if c.MemberA.Email == email {
		return c.MemberB
	}
	return c.MemberA
}

// Has 判断 email 是否为好友关系成员
func (c *Contact) Has(email string) bool {
	return c.MemberA.Email == email || c.MemberB.Email == email
}
