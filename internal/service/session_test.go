package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository/mocks"
	"github.com/weixueshi04/TimeScheduleApp/internal/service"
)

func TestSessionService_UpdateEnergy_Success(t *testing.T) {
	// Arrange
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantActive, EnergyLevel: 100}
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).Return(participant, nil).Once()
	store.ParticipantsRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.EnergyLevel == 35
	})).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.EventType == domain.EventEnergyUpdate && ev.RoomID == 3 && ev.UserID == 9
	})).Return(nil).Once()

	// Act
	err := sessionService.UpdateEnergy(ctx, 3, 9, 35)

	// Assert
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSessionService_UpdateEnergy_OutOfRange(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	for _, level := range []int{-1, 101} {
		err := sessionService.UpdateEnergy(ctx, 3, 9, level)
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrValidation))
	}
	store.ParticipantsRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSessionService_UpdateEnergy_NotParticipant(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).
		Return(nil, repository.ErrParticipantNotFound).Once()

	err := sessionService.UpdateEnergy(ctx, 3, 9, 50)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrParticipantNotFound))
}

func TestSessionService_SetFocusState(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantActive, FocusState: domain.FocusStateFocused}
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).Return(participant, nil).Once()
	store.ParticipantsRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.FocusState == domain.FocusStateBreak
	})).Return(nil).Once()

	got, err := sessionService.SetFocusState(ctx, 3, 9, string(domain.FocusStateBreak))

	require.NoError(t, err)
	assert.Equal(t, domain.FocusStateBreak, got.FocusState)
	store.AssertExpectations(t)
}

func TestSessionService_SetFocusState_Invalid(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	_, err := sessionService.SetFocusState(ctx, 3, 9, "sleeping")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
	store.ParticipantsRepo.AssertNotCalled(t, "FindPresent", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_RecordEvent(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.RoomID == 3 && ev.UserID == 9 && ev.EventType == domain.EventChatMessage
	})).Return(nil).Once()

	err := sessionService.RecordEvent(ctx, 3, 9, domain.EventChatMessage, map[string]any{
		"content": "加油！",
	})

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestSessionService_GetSnapshot_CacheHit(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	cached := &domain.RoomSnapshot{RoomID: 3, Status: domain.RoomStatusActive, ParticipantIDs: []uint{1, 9}}
	state.On("GetRoomSnapshot", ctx, uint(3)).Return(cached, nil).Once()

	got, err := sessionService.GetSnapshot(ctx, 3)

	require.NoError(t, err)
	assert.Equal(t, cached, got)
	// 命中缓存时不应触碰数据库
	store.RoomsRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	state.AssertExpectations(t)
}

func TestSessionService_GetSnapshot_CacheMissRebuild(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	now := time.Now()
	state.On("GetRoomSnapshot", ctx, uint(3)).Return(nil, repository.ErrSnapshotNotFound).Once()
	store.RoomsRepo.On("FindByID", ctx, uint(3)).Return(&domain.Room{
		ID: 3, Status: domain.RoomStatusActive, CreatedAt: now, UpdatedAt: now,
	}, nil).Once()
	store.ParticipantsRepo.On("ListPresent", ctx, uint(3)).Return([]domain.Participant{
		{RoomID: 3, UserID: 1}, {RoomID: 3, UserID: 9},
	}, nil).Once()
	// 重建结果应回填缓存
	state.On("SetRoomSnapshot", ctx, mock.MatchedBy(func(s *domain.RoomSnapshot) bool {
		return s.RoomID == 3 && len(s.ParticipantIDs) == 2
	}), mock.AnythingOfType("time.Duration")).Return(nil).Once()

	got, err := sessionService.GetSnapshot(ctx, 3)

	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, got.Status)
	assert.Equal(t, []uint{1, 9}, got.ParticipantIDs)
	store.AssertExpectations(t)
	state.AssertExpectations(t)
}

func TestSessionService_GetSnapshot_RoomMissing(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	sessionService := service.NewSessionService(store, state)
	ctx := context.Background()

	state.On("GetRoomSnapshot", ctx, uint(99)).Return(nil, repository.ErrSnapshotNotFound).Once()
	store.RoomsRepo.On("FindByID", ctx, uint(99)).Return(nil, repository.ErrRoomNotFound).Once()

	_, err := sessionService.GetSnapshot(ctx, 99)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}
