package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// EventRepository 是 repository.EventRepository 的 testify Mock 实现。
type EventRepository struct {
	mock.Mock
}

func (m *EventRepository) Append(ctx context.Context, ev *domain.RoomEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *EventRepository) ListByRoom(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error) {
	args := m.Called(ctx, roomID, limit)
	var evs []domain.RoomEvent
	if args.Get(0) != nil {
		evs = args.Get(0).([]domain.RoomEvent)
	}
	return evs, args.Error(1)
}
