package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// GormEventRepository 是 EventRepository 接口的 GORM 实现
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GormEventRepository 实例
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	if db == nil {
		panic("database connection cannot be nil for GormEventRepository")
	}
	return &GormEventRepository{db: db}
}

// Append 实现追加事件记录
func (r *GormEventRepository) Append(ctx context.Context, ev *domain.RoomEvent) error {
	err := r.db.WithContext(ctx).Create(ev).Error
	if err != nil {
		return fmt.Errorf("gorm: append event (room %d, type %s): %w", ev.RoomID, ev.EventType, err)
	}
	return nil
}

// ListByRoom 实现查询房间最近的事件
func (r *GormEventRepository) ListByRoom(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []domain.RoomEvent
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list events for room %d: %w", roomID, err)
	}
	return events, nil
}
