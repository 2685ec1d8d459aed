package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// ParticipantRepository 是 repository.ParticipantRepository 的 testify Mock 实现。
type ParticipantRepository struct {
	mock.Mock
}

func (m *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ParticipantRepository) FindPresent(ctx context.Context, roomID, userID uint) (*domain.Participant, error) {
	args := m.Called(ctx, roomID, userID)
	var p *domain.Participant
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.Participant)
	}
	return p, args.Error(1)
}

func (m *ParticipantRepository) ListPresent(ctx context.Context, roomID uint) ([]domain.Participant, error) {
	args := m.Called(ctx, roomID)
	var ps []domain.Participant
	if args.Get(0) != nil {
		ps = args.Get(0).([]domain.Participant)
	}
	return ps, args.Error(1)
}

func (m *ParticipantRepository) CountPresent(ctx context.Context, roomID uint) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ParticipantRepository) Save(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ParticipantRepository) ActivateJoined(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *ParticipantRepository) MarkAllLeft(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}
