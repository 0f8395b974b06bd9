package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
)

// ContactRepository 好友关系数据访问
type ContactRepository struct {
	db DB
}

// NewContactRepository 创建好友仓库
func NewContactRepository(db DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id,
	member_a_email, member_a_name, member_a_avatar_ref, member_a_residency,
	member_a_last_seen_permission, member_a_last_seen_time,
	member_b_email, member_b_name, member_b_avatar_ref, member_b_residency,
	member_b_last_seen_permission, member_b_last_seen_time`

func scanContact(row pgx.Row) (*model.Contact, error) {
	c := &model.Contact{}
	err := row.Scan(
		&c.ID,
		&c.MemberA.Email,
		&c.MemberA.Name,
		&c.MemberA.AvatarRef,
		&c.MemberA.Residency,
		&c.MemberA.LastSeenPermission,
		&c.MemberA.LastSeenTime,
		&c.MemberB.Email,
		&c.MemberB.Name,
		&c.MemberB.AvatarRef,
		&c.MemberB.Residency,
		&c.MemberB.LastSeenPermission,
		&c.MemberB.LastSeenTime,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindFriendship 对称查找好友关系，不存在时返回 (nil, nil)
// 成员顺序无关：(A,B) 和 (B,A) 查到同一条记录
func (r *ContactRepository) FindFriendship(ctx context.Context, emailA, emailB string) (*model.Contact, error) {
	query := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE (member_a_email = $1 AND member_b_email = $2)
		   OR (member_a_email = $2 AND member_b_email = $1)
	`
	contact, err := scanContact(r.db.QueryRow(ctx, query, emailA, emailB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return contact, nil
}

// Create 创建好友关系
func (r *ContactRepository) Create(ctx context.Context, contact *model.Contact) error {
	query := `
		INSERT INTO contacts (` + contactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		contact.ID,
		contact.MemberA.Email,
		contact.MemberA.Name,
		contact.MemberA.AvatarRef,
		contact.MemberA.Residency,
		contact.MemberA.LastSeenPermission,
		contact.MemberA.LastSeenTime,
		contact.MemberB.Email,
		contact.MemberB.Name,
		contact.MemberB.AvatarRef,
		contact.MemberB.Residency,
		contact.MemberB.LastSeenPermission,
		contact.MemberB.LastSeenTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrAlreadyFriends
		}
		return err
	}
	return nil
}

// ListForUser 获取用户的全部好友关系
func (r *ContactRepository) ListForUser(ctx context.Context, email string) ([]*model.Contact, error) {
	query := `
		SELECT ` + contactColumns + ` FROM contacts
		WHERE member_a_email = $1 OR member_b_email = $1
	`
	rows, err := r.db.Query(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*model.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

// UpdateMemberProfile 更新该用户在所有好友关系中的展示投影
func (r *ContactRepository) UpdateMemberProfile(ctx context.Context, email string, upd model.ProfileUpdate) error {
	queryA := `
		UPDATE contacts SET member_a_name = $2, member_a_avatar_ref = $3, member_a_residency = $4
		WHERE member_a_email = $1
	`
	if _, err := r.db.Exec(ctx, queryA, email, upd.Name, upd.AvatarRef, upd.Residency); err != nil {
		return err
	}

	queryB := `
		UPDATE contacts SET member_b_name = $2, member_b_avatar_ref = $3, member_b_residency = $4
		WHERE member_b_email = $1
	`
	_, err := r.db.Exec(ctx, queryB, email, upd.Name, upd.AvatarRef, upd.Residency)
	return err
}
