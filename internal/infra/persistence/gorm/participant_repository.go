package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// GormParticipantRepository 是 ParticipantRepository 接口的 GORM 实现
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository 创建 GormParticipantRepository 实例
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	if db == nil {
		panic("database connection cannot be nil for GormParticipantRepository")
	}
	return &GormParticipantRepository{db: db}
}

// Create 实现插入成员记录
func (r *GormParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create participant (room %d, user %d): %w", p.RoomID, p.UserID, err)
	}
	return nil
}

// FindPresent 实现查找未离开的成员记录
func (r *GormParticipantRepository) FindPresent(ctx context.Context, roomID, userID uint) (*domain.Participant, error) {
	var p domain.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND status != ?", roomID, userID, domain.ParticipantLeft).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("gorm: find participant (room %d, user %d): %w", roomID, userID, err)
	}
	return &p, nil
}

// ListPresent 实现列出房间内未离开的成员
func (r *GormParticipantRepository) ListPresent(ctx context.Context, roomID uint) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status != ?", roomID, domain.ParticipantLeft).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list participants for room %d: %w", roomID, err)
	}
	return participants, nil
}

// CountPresent 实现统计房间内未离开的成员数
func (r *GormParticipantRepository) CountPresent(ctx context.Context, roomID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND status != ?", roomID, domain.ParticipantLeft).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count participants for room %d: %w", roomID, err)
	}
	return count, nil
}

// Save 实现保存成员记录
func (r *GormParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	err := r.db.WithContext(ctx).Save(p).Error
	if err != nil {
		return fmt.Errorf("gorm: save participant (id %d): %w", p.ID, err)
	}
	return nil
}

// ActivateJoined 实现批量激活 joined 状态的成员
func (r *GormParticipantRepository) ActivateJoined(ctx context.Context, roomID uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND status = ?", roomID, domain.ParticipantJoined).
		Update("status", domain.ParticipantActive).Error
	if err != nil {
		return fmt.Errorf("gorm: activate participants for room %d: %w", roomID, err)
	}
	return nil
}

// MarkAllLeft 实现批量将未离开成员置为 left
func (r *GormParticipantRepository) MarkAllLeft(ctx context.Context, roomID uint) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND status != ?", roomID, domain.ParticipantLeft).
		Updates(map[string]interface{}{
			"status":  domain.ParticipantLeft,
			"left_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: mark participants left for room %d: %w", roomID, err)
	}
	return nil
}
