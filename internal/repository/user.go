package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
)

// UserRepository 用户数据访问
// 用户归属于身份子系统，核心只写在线状态字段
type UserRepository struct {
	db DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, name, avatar_ref, residency, last_seen_permission, last_seen_time, is_online)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarRef,
		user.Residency,
		user.LastSeenPermission,
		user.LastSeenTime,
		user.IsOnline,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrEmailExists
		}
		return err
	}
	return nil
}

// GetByEmail 通过邮箱获取用户
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, name, avatar_ref, residency, last_seen_permission, last_seen_time, is_online
		FROM users WHERE email = $1
	`
	user := &model.User{}
	err := r.db.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.AvatarRef,
		&user.Residency,
		&user.LastSeenPermission,
		&user.LastSeenTime,
		&user.IsOnline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SetOnline 标记用户在线
func (r *UserRepository) SetOnline(ctx context.Context, email string) error {
	query := `UPDATE users SET is_online = TRUE WHERE email = $1`
	result, err := r.db.Exec(ctx, query, email)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// SetOffline 标记用户离线并记录最后在线时间
func (r *UserRepository) SetOffline(ctx context.Context, email string, lastSeen time.Time) error {
	query := `UPDATE users SET is_online = FALSE, last_seen_time = $2 WHERE email = $1`
	result, err := r.db.Exec(ctx, query, email, lastSeen)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

// UpdateProfile 更新用户资料字段
// 必须与会话行/好友关系的投影更新在同一事务中调用
func (r *UserRepository) UpdateProfile(ctx context.Context, email string, upd model.ProfileUpdate) error {
	query := `UPDATE users SET name = $2, avatar_ref = $3, residency = $4 WHERE email = $1`
	result, err := r.db.Exec(ctx, query, email, upd.Name, upd.AvatarRef, upd.Residency)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
