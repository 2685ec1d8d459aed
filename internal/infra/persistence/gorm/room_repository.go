package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &room, nil
}

// FindByIDForUpdate 在事务内以行锁读取房间。
// 两个并发 join 会在这里串行化，容量检查因此不会被同时通过。
func (r *GormRoomRepository) FindByIDForUpdate(ctx context.Context, id uint) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&room, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d for update: %w", id, err)
	}
	return &room, nil
}

// FindByCode 实现根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("room_code = ?", code).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &room, nil
}

// Create 实现创建新房间
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Create(room).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (code: %s): %w", room.RoomCode, err)
	}
	return nil
}

// Save 实现保存房间的修改
func (r *GormRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Save(room).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", room.ID, room.RoomCode, err)
	}
	return nil
}

// IsRoomCodeExists 实现检查房间码是否存在
func (r *GormRoomRepository) IsRoomCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("room_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// List 实现按条件查询房间列表
func (r *GormRoomRepository) List(ctx context.Context, filter repository.RoomFilter) ([]domain.Room, error) {
	var rooms []domain.Room
	query := r.db.WithContext(ctx).Model(&domain.Room{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms: %w", err)
	}
	return rooms, nil
}

// ListByUser 实现查询用户参与过的房间
func (r *GormRoomRepository) ListByUser(ctx context.Context, userID uint, status string) ([]domain.Room, error) {
	var rooms []domain.Room
	query := r.db.WithContext(ctx).Model(&domain.Room{}).
		Joins("JOIN participants ON participants.room_id = rooms.id").
		Where("participants.user_id = ?", userID)
	if status != "" {
		query = query.Where("rooms.status = ?", status)
	}
	err := query.Distinct("rooms.*").Order("rooms.created_at DESC").Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rooms by user %d: %w", userID, err)
	}
	return rooms, nil
}

// ListExpiredActive 实现查询已过计划结束时间的 active 房间 ID
func (r *GormRoomRepository) ListExpiredActive(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.Room{}).
		Where("status = ? AND scheduled_end_time < ?", domain.RoomStatusActive, now).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list expired active rooms: %w", err)
	}
	return ids, nil
}
