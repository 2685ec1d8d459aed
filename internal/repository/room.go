package repository

import (
	"context"
	"time"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// RoomFilter 描述房间列表查询的过滤条件。
type RoomFilter struct {
	Status string // 空字符串表示不过滤
	Limit  int
	Offset int
}

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByIDForUpdate 在事务内以行锁（SELECT ... FOR UPDATE）读取房间。
	// 用于容量检查等需要排他的多步修改，必须在 Store.WithinTx 内调用。
	FindByIDForUpdate(ctx context.Context, id uint) (*domain.Room, error)

	// FindByCode 根据房间码查找房间。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Create 创建新房间。房间码冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// Save 保存房间的修改。
	Save(ctx context.Context, room *domain.Room) error

	// IsRoomCodeExists 检查房间码是否已被占用。
	IsRoomCodeExists(ctx context.Context, code string) (bool, error)

	// List 按过滤条件返回房间列表，按创建时间倒序。
	List(ctx context.Context, filter RoomFilter) ([]domain.Room, error)

	// ListByUser 返回用户参与过的房间（任意成员状态），按创建时间倒序。
	ListByUser(ctx context.Context, userID uint, status string) ([]domain.Room, error)

	// ListExpiredActive 返回计划结束时间早于 now 且仍为 active 的房间 ID。
	// 由后台清扫任务使用。
	ListExpiredActive(ctx context.Context, now time.Time) ([]uint, error)
}
