package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Heaven664/messenger-backend/internal/model"
)

const (
	// locationKeyPrefix 用户连接位置 Redis Key 前缀
	locationKeyPrefix = "chat:user:location:"

	// locationTTL 用户位置 TTL，由心跳刷新
	locationTTL = 24 * time.Hour
)

// buildLocationKey 构建用户位置 Key: chat:user:location:{email}
func buildLocationKey(email string) string {
	return locationKeyPrefix + email
}

// buildLocationField 构建位置 Hash Field: {nodeId}:{connId}
func buildLocationField(nodeID string, connID int64) string {
	return fmt.Sprintf("%s:%d", nodeID, connID)
}

// LocationRepository 用户连接位置存储（Redis）
// 每个用户一个 Hash，field 为节点+连接，支持多端在线查询
type LocationRepository struct {
	rdb *redis.Client
}

// NewLocationRepository 创建位置仓库
func NewLocationRepository(rdb *redis.Client) *LocationRepository {
	return &LocationRepository{rdb: rdb}
}

// Register 注册用户连接位置
func (r *LocationRepository) Register(ctx context.Context, loc *model.UserLocation) error {
	value, err := json.Marshal(loc)
	if err != nil {
		return err
	}

	key := buildLocationKey(loc.Email)
	field := buildLocationField(loc.NodeID, loc.ConnID)

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, field, value)
	pipe.Expire(ctx, key, locationTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Unregister 移除用户连接位置
func (r *LocationRepository) Unregister(ctx context.Context, email, nodeID string, connID int64) error {
	key := buildLocationKey(email)
	field := buildLocationField(nodeID, connID)
	return r.rdb.HDel(ctx, key, field).Err()
}

// Refresh 刷新用户位置 TTL（心跳时调用）
func (r *LocationRepository) Refresh(ctx context.Context, email string) error {
	return r.rdb.Expire(ctx, buildLocationKey(email), locationTTL).Err()
}

// List 获取用户所有连接位置
func (r *LocationRepository) List(ctx context.Context, email string) ([]model.UserLocation, error) {
	entries, err := r.rdb.HGetAll(ctx, buildLocationKey(email)).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]model.UserLocation, 0, len(entries))
	for _, value := range entries {
		var loc model.UserLocation
		if err := json.Unmarshal([]byte(value), &loc); err != nil {
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// IsOnline 检查用户是否有存活连接
func (r *LocationRepository) IsOnline(ctx context.Context, email string) (bool, error) {
	count, err := r.rdb.HLen(ctx, buildLocationKey(email)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
