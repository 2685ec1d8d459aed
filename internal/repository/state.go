package repository

import (
	"context"
	"time"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// StateRepository 定义了与实时状态相关的操作，由 Redis 实现。
//
// 这里的所有数据都是派生或临时的：快照可以从数据库重建，在线状态
// 和匹配队列随连接/撤回消失。调用方必须把缓存失败当作缓存未命中
// 降级处理，绝不把这里当作事实来源。
type StateRepository interface {
	// === 房间状态快照 ===

	// GetRoomSnapshot 读取房间快照缓存，未命中返回 ErrSnapshotNotFound。
	GetRoomSnapshot(ctx context.Context, roomID uint) (*domain.RoomSnapshot, error)

	// SetRoomSnapshot 写入房间快照缓存并设置 TTL。
	SetRoomSnapshot(ctx context.Context, snapshot *domain.RoomSnapshot, ttl time.Duration) error

	// DeleteRoomSnapshot 删除房间快照缓存（失效）。
	DeleteRoomSnapshot(ctx context.Context, roomID uint) error

	// === 用户在线状态 ===

	// SetUserOnline 记录用户当前的连接 ID，带 TTL。
	SetUserOnline(ctx context.Context, userID uint, connID string) error

	// GetUserConn 返回用户当前在线的连接 ID，离线返回 ErrNotFound。
	GetUserConn(ctx context.Context, userID uint) (string, error)

	// SetUserOffline 清除用户的在线记录。
	SetUserOffline(ctx context.Context, userID uint) error

	// === 匹配队列 ===

	// EnqueueCandidate 将候选人加入匹配队列（按入队时间排序）。
	// 同一用户重复入队时替换旧条目（last writer wins）。
	EnqueueCandidate(ctx context.Context, c domain.MatchingCandidate) error

	// RemoveCandidate 按用户 ID 从队列移除，返回是否确有条目被移除。
	RemoveCandidate(ctx context.Context, userID uint) (bool, error)

	// GetCandidate 返回指定用户的队列条目，不在队列中返回 ErrNotFound。
	GetCandidate(ctx context.Context, userID uint) (*domain.MatchingCandidate, error)

	// PeekQueue 返回最多 limit 个候选人，按入队时间升序，不改变队列。
	PeekQueue(ctx context.Context, limit int) ([]domain.MatchingCandidate, error)

	// === 限流 ===

	// CheckRateLimit 检查 key 的请求频率是否超限并递增计数。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
