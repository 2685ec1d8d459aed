package repository

import (
	"context"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// ParticipantRepository 定义了房间成员记录的存储操作。
type ParticipantRepository interface {
	// Create 插入一条成员记录。
	Create(ctx context.Context, p *domain.Participant) error

	// FindPresent 查找 (room, user) 当前未离开的成员记录，
	// 没有则返回 ErrParticipantNotFound。
	FindPresent(ctx context.Context, roomID, userID uint) (*domain.Participant, error)

	// ListPresent 返回房间内所有未离开的成员，按加入时间升序。
	ListPresent(ctx context.Context, roomID uint) ([]domain.Participant, error)

	// CountPresent 统计房间内未离开的成员数。
	CountPresent(ctx context.Context, roomID uint) (int64, error)

	// Save 保存成员记录的修改（状态、能量、惩罚等）。
	Save(ctx context.Context, p *domain.Participant) error

	// ActivateJoined 将房间内所有 joined 状态的成员批量置为 active。
	ActivateJoined(ctx context.Context, roomID uint) error

	// MarkAllLeft 将房间内所有未离开成员置为 left（会话正常结束时使用，
	// 不记提前离开也不罚时）。
	MarkAllLeft(ctx context.Context, roomID uint) error
}
