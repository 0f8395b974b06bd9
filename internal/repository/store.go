package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
)

// DB pgxpool.Pool 和 pgx.Tx 共同实现的查询接口
// 仓库绑定到 DB 而不是具体类型，同一份仓库代码既能跑在连接池上也能跑在事务里
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos 绑定到同一执行环境（连接池或单个事务）的一组仓库
type Repos struct {
	Users    *UserRepository
	Chats    *ChatRepository
	Messages *MessageRepository
	Contacts *ContactRepository
}

func newRepos(db DB) Repos {
	return Repos{
		Users:    NewUserRepository(db),
		Chats:    NewChatRepository(db),
		Messages: NewMessageRepository(db),
		Contacts: NewContactRepository(db),
	}
}

// Store 数据存储入口：连接池上的仓库集合 + 多语句事务原语
type Store struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
	Repos
}

// NewStore 创建 Store
func NewStore(pool *pgxpool.Pool, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &Store{
		pool:      pool,
		txTimeout: txTimeout,
		Repos:     newRepos(pool),
	}
}

// WithinTx 在一个数据库事务中执行 fn
// fn 返回 nil 时提交，否则整个事务回滚，部分写入永远不可见
// 业务错误（AppError）原样透传；基础设施错误和提交失败包装为 ErrTransactionFailed
func (s *Store) WithinTx(ctx context.Context, fn func(tx Repos) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.ErrTransactionFailed.Wrap(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newRepos(tx)); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.ErrTransactionFailed.Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.ErrTransactionFailed.Wrap(err)
	}
	return nil
}

// EnsureSchema 创建缺失的表和索引
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			avatar_ref TEXT NOT NULL DEFAULT '',
			residency TEXT NOT NULL DEFAULT '',
			last_seen_permission BOOLEAN NOT NULL DEFAULT TRUE,
			last_seen_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_online BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			owner_email TEXT NOT NULL,
			peer_email TEXT NOT NULL,
			peer_name TEXT NOT NULL DEFAULT '',
			peer_avatar_ref TEXT NOT NULL DEFAULT '',
			peer_residency TEXT NOT NULL DEFAULT '',
			last_message_time TIMESTAMPTZ NOT NULL,
			unread_count INT NOT NULL DEFAULT 0,
			peer_last_seen_permission BOOLEAN NOT NULL DEFAULT TRUE,
			peer_last_seen_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			peer_is_online BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (owner_email, peer_email)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY,
			sender_email TEXT NOT NULL,
			receiver_email TEXT NOT NULL,
			body TEXT NOT NULL,
			sender_avatar_ref TEXT NOT NULL DEFAULT '',
			sent_time TIMESTAMPTZ NOT NULL,
			viewed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair
			ON messages (sender_email, receiver_email, sent_time)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id BIGINT PRIMARY KEY,
			member_a_email TEXT NOT NULL,
			member_a_name TEXT NOT NULL DEFAULT '',
			member_a_avatar_ref TEXT NOT NULL DEFAULT '',
			member_a_residency TEXT NOT NULL DEFAULT '',
			member_a_last_seen_permission BOOLEAN NOT NULL DEFAULT TRUE,
			member_a_last_seen_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			member_b_email TEXT NOT NULL,
			member_b_name TEXT NOT NULL DEFAULT '',
			member_b_avatar_ref TEXT NOT NULL DEFAULT '',
			member_b_residency TEXT NOT NULL DEFAULT '',
			member_b_last_seen_permission BOOLEAN NOT NULL DEFAULT TRUE,
			member_b_last_seen_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (member_a_email, member_b_email)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_member_b
			ON contacts (member_b_email)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
