// Package redisstate 提供 StateRepository 接口的 Redis 实现。
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// 在线状态记录的 TTL。连接存活期间由心跳周期性续期。
const onlineStatusTTL = time.Hour

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "ts:" // 默认前缀 "ts:" (time schedule)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) roomSnapshotKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:state", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) userOnlineKey(userID uint) string {
	return fmt.Sprintf("%suser:%d:online", r.keyPrefix, userID)
}

func (r *RedisStateRepository) matchingQueueKey() string {
	return r.keyPrefix + "queue:matching"
}

func (r *RedisStateRepository) matchingDataKey() string {
	return r.keyPrefix + "queue:matching:data"
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return r.keyPrefix + "ratelimit:" + key
}

// --- 房间状态快照 ---

// GetRoomSnapshot 读取房间快照缓存
func (r *RedisStateRepository) GetRoomSnapshot(ctx context.Context, roomID uint) (*domain.RoomSnapshot, error) {
	key := r.roomSnapshotKey(roomID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("redis: get room snapshot for room %d from %s: %w", roomID, key, err)
	}
	var snapshot domain.RoomSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		// 缓存里的数据坏了就当未命中，让调用方重建
		logrus.WithError(err).WithField("room_id", roomID).Warn("redis: corrupt room snapshot, treating as miss")
		return nil, repository.ErrSnapshotNotFound
	}
	return &snapshot, nil
}

// SetRoomSnapshot 写入房间快照缓存
func (r *RedisStateRepository) SetRoomSnapshot(ctx context.Context, snapshot *domain.RoomSnapshot, ttl time.Duration) error {
	key := r.roomSnapshotKey(snapshot.RoomID)
	bytes, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis: marshal room snapshot for room %d: %w", snapshot.RoomID, err)
	}
	if err := r.client.Set(ctx, key, bytes, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set room snapshot for room %d on %s: %w", snapshot.RoomID, key, err)
	}
	return nil
}

// DeleteRoomSnapshot 删除房间快照缓存
func (r *RedisStateRepository) DeleteRoomSnapshot(ctx context.Context, roomID uint) error {
	key := r.roomSnapshotKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete room snapshot for room %d on %s: %w", roomID, key, err)
	}
	return nil
}

// --- 用户在线状态 ---

// onlineRecord 是在线状态 key 存储的值。
type onlineRecord struct {
	ConnID    string `json:"connId"`
	Timestamp int64  `json:"timestamp"`
}

// SetUserOnline 记录用户当前连接
func (r *RedisStateRepository) SetUserOnline(ctx context.Context, userID uint, connID string) error {
	key := r.userOnlineKey(userID)
	bytes, err := json.Marshal(onlineRecord{ConnID: connID, Timestamp: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("redis: marshal online record for user %d: %w", userID, err)
	}
	if err := r.client.Set(ctx, key, bytes, onlineStatusTTL).Err(); err != nil {
		return fmt.Errorf("redis: set user %d online on %s: %w", userID, key, err)
	}
	return nil
}

// GetUserConn 返回用户当前在线的连接 ID
func (r *RedisStateRepository) GetUserConn(ctx context.Context, userID uint) (string, error) {
	key := r.userOnlineKey(userID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis: get online status for user %d from %s: %w", userID, key, err)
	}
	var rec onlineRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", repository.ErrNotFound
	}
	return rec.ConnID, nil
}

// SetUserOffline 清除用户的在线记录
func (r *RedisStateRepository) SetUserOffline(ctx context.Context, userID uint) error {
	key := r.userOnlineKey(userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: set user %d offline on %s: %w", userID, key, err)
	}
	return nil
}

// --- 匹配队列 ---
// 有序集合按入队时间戳排序，member 是用户 ID；候选人详情放在
// 旁边的 hash 里。同一用户重复入队只会覆盖 hash 条目并刷新分数，
// 天然满足 last-writer-wins。

// EnqueueCandidate 将候选人加入匹配队列
func (r *RedisStateRepository) EnqueueCandidate(ctx context.Context, c domain.MatchingCandidate) error {
	member := strconv.FormatUint(uint64(c.UserID), 10)
	bytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: marshal matching candidate for user %d: %w", c.UserID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.matchingQueueKey(), &redis.Z{
		Score:  float64(c.EnqueuedAt.UnixMilli()),
		Member: member,
	})
	pipe.HSet(ctx, r.matchingDataKey(), member, bytes)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: enqueue matching candidate for user %d: %w", c.UserID, err)
	}
	return nil
}

// RemoveCandidate 按用户 ID 从队列移除
func (r *RedisStateRepository) RemoveCandidate(ctx context.Context, userID uint) (bool, error) {
	member := strconv.FormatUint(uint64(userID), 10)
	pipe := r.client.TxPipeline()
	zremCmd := pipe.ZRem(ctx, r.matchingQueueKey(), member)
	pipe.HDel(ctx, r.matchingDataKey(), member)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: remove matching candidate for user %d: %w", userID, err)
	}
	return zremCmd.Val() > 0, nil
}

// GetCandidate 返回指定用户的队列条目
func (r *RedisStateRepository) GetCandidate(ctx context.Context, userID uint) (*domain.MatchingCandidate, error) {
	member := strconv.FormatUint(uint64(userID), 10)
	raw, err := r.client.HGet(ctx, r.matchingDataKey(), member).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get matching candidate for user %d: %w", userID, err)
	}
	var c domain.MatchingCandidate
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("redis: unmarshal matching candidate for user %d: %w", userID, err)
	}
	return &c, nil
}

// PeekQueue 返回最多 limit 个候选人，按入队时间升序
func (r *RedisStateRepository) PeekQueue(ctx context.Context, limit int) ([]domain.MatchingCandidate, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := r.client.ZRange(ctx, r.matchingQueueKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range matching queue: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	raws, err := r.client.HMGet(ctx, r.matchingDataKey(), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch matching candidates: %w", err)
	}
	candidates := make([]domain.MatchingCandidate, 0, len(raws))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			// 有序集合和 hash 偶尔会短暂不一致（撤回的并发窗口），直接跳过
			logrus.WithField("member", members[i]).Debug("redis: matching candidate data missing, skipping")
			continue
		}
		var c domain.MatchingCandidate
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			logrus.WithError(err).WithField("member", members[i]).Warn("redis: corrupt matching candidate, skipping")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// --- 限流 ---

// CheckRateLimit 检查 key 的请求频率是否超限并递增计数
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	current, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis: incr rate limit key %s: %w", fullKey, err)
	}
	if current == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("redis: expire rate limit key %s: %w", fullKey, err)
		}
	}
	return current > int64(limit), nil
}
