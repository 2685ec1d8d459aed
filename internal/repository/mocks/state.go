package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// StateRepository 是 repository.StateRepository 的 testify Mock 实现。
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) GetRoomSnapshot(ctx context.Context, roomID uint) (*domain.RoomSnapshot, error) {
	args := m.Called(ctx, roomID)
	var s *domain.RoomSnapshot
	if args.Get(0) != nil {
		s = args.Get(0).(*domain.RoomSnapshot)
	}
	return s, args.Error(1)
}

func (m *StateRepository) SetRoomSnapshot(ctx context.Context, snapshot *domain.RoomSnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func (m *StateRepository) DeleteRoomSnapshot(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *StateRepository) SetUserOnline(ctx context.Context, userID uint, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

func (m *StateRepository) GetUserConn(ctx context.Context, userID uint) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *StateRepository) SetUserOffline(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *StateRepository) EnqueueCandidate(ctx context.Context, c domain.MatchingCandidate) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *StateRepository) RemoveCandidate(ctx context.Context, userID uint) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *StateRepository) GetCandidate(ctx context.Context, userID uint) (*domain.MatchingCandidate, error) {
	args := m.Called(ctx, userID)
	var c *domain.MatchingCandidate
	if args.Get(0) != nil {
		c = args.Get(0).(*domain.MatchingCandidate)
	}
	return c, args.Error(1)
}

func (m *StateRepository) PeekQueue(ctx context.Context, limit int) ([]domain.MatchingCandidate, error) {
	args := m.Called(ctx, limit)
	var cs []domain.MatchingCandidate
	if args.Get(0) != nil {
		cs = args.Get(0).([]domain.MatchingCandidate)
	}
	return cs, args.Error(1)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
