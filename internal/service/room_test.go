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

func validCreateInput() service.CreateRoomInput {
	return service.CreateRoomInput{
		Name:               "晚自习",
		DurationMinutes:    60,
		ScheduledStartTime: time.Now().Add(10 * time.Minute),
		MaxParticipants:    4,
		TaskCategory:       "coding",
	}
}

// --- CreateRoom ---

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	creator := &domain.User{
		ID:                  7,
		Username:            "alice",
		TotalCompletedTasks: 8,
		TotalStudySessions:  10,
		TotalFocusHours:     42,
	}

	store.RoomsRepo.On("IsRoomCodeExists", ctx, mock.AnythingOfType("string")).Return(false, nil).Once()
	store.UsersRepo.On("FindByID", ctx, uint(7)).Return(creator, nil).Once()
	store.RoomsRepo.On("Create", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Len(t, room.RoomCode, 8)
		// 房间码只允许大写字母和数字
		for _, ch := range room.RoomCode {
			assert.Contains(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", string(ch))
		}
		assert.Equal(t, domain.RoomStatusWaiting, room.Status)
		assert.Equal(t, 1, room.CurrentParticipants)
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 3
		}).
		Return(nil).Once()
	store.ParticipantsRepo.On("Create", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.RoomID == 3 && p.UserID == 7 &&
			p.Role == domain.RoleCreator && p.Status == domain.ParticipantJoined
	})).Return(nil).Once()
	state.On("SetRoomSnapshot", ctx, mock.AnythingOfType("*domain.RoomSnapshot"), mock.AnythingOfType("time.Duration")).
		Return(nil).Once()

	// Act
	room, err := roomService.CreateRoom(ctx, 7, validCreateInput())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(3), room.ID)

	// 匹配条件应快照创建者当前统计
	criteria, err := room.ParseMatchingCriteria()
	require.NoError(t, err)
	assert.Equal(t, "coding", criteria.TaskCategory)
	assert.InDelta(t, 80.0, criteria.CompletionRate, 0.001)
	assert.InDelta(t, 42.0, criteria.TotalFocusHours, 0.001)

	store.AssertExpectations(t)
	state.AssertExpectations(t)
}

func TestRoomService_CreateRoom_Validation(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*service.CreateRoomInput)
	}{
		{"时长不足15分钟", func(in *service.CreateRoomInput) { in.DurationMinutes = 10 }},
		{"人数上限小于2", func(in *service.CreateRoomInput) { in.MaxParticipants = 1 }},
		{"人数上限大于10", func(in *service.CreateRoomInput) { in.MaxParticipants = 11 }},
		{"缺少计划开始时间", func(in *service.CreateRoomInput) { in.ScheduledStartTime = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validCreateInput()
			tt.mutate(&input)
			_, err := roomService.CreateRoom(ctx, 1, input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, service.ErrValidation), "应返回 ErrValidation")
		})
	}
	// 校验失败时不应触碰存储
	store.RoomsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRoomService_CreateRoom_CodeExhausted(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	// 连续 10 次撞码后放弃
	store.RoomsRepo.On("IsRoomCodeExists", ctx, mock.AnythingOfType("string")).Return(true, nil).Times(10)

	_, err := roomService.CreateRoom(ctx, 1, validCreateInput())

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrCodeExhausted))
	store.RoomsRepo.AssertExpectations(t)
	store.RoomsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- JoinRoom ---

func waitingRoom(id uint, current, max int) *domain.Room {
	return &domain.Room{
		ID:                  id,
		RoomCode:            "ABCD2345",
		CreatorID:           1,
		Status:              domain.RoomStatusWaiting,
		CurrentParticipants: current,
		MaxParticipants:     max,
		DurationMinutes:     60,
		ScheduledEndTime:    time.Now().Add(time.Hour),
	}
}

func TestRoomService_JoinRoom_Success(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 1, 4)
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()
	store.ParticipantsRepo.On("CountPresent", ctx, uint(3)).Return(int64(1), nil).Once()
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).
		Return(nil, repository.ErrParticipantNotFound).Once()
	store.UsersRepo.On("FindByID", ctx, uint(9)).Return(&domain.User{ID: 9, Username: "bob"}, nil).Once()
	store.ParticipantsRepo.On("Create", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.RoomID == 3 && p.UserID == 9 && p.Role == domain.RoleMember
	})).Return(nil).Once()
	store.RoomsRepo.On("Save", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.CurrentParticipants == 2
	})).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.EventType == domain.EventUserJoined && ev.RoomID == 3 && ev.UserID == 9
	})).Return(nil).Once()
	state.On("DeleteRoomSnapshot", ctx, uint(3)).Return(nil).Once()

	got, err := roomService.JoinRoom(ctx, 3, 9)

	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentParticipants)
	store.AssertExpectations(t)
	state.AssertExpectations(t)
}

func TestRoomService_JoinRoom_Full(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(waitingRoom(3, 4, 4), nil).Once()
	// 容量判断以成员表的实际在场人数为准
	store.ParticipantsRepo.On("CountPresent", ctx, uint(3)).Return(int64(4), nil).Once()

	_, err := roomService.JoinRoom(ctx, 3, 9)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomFull))
	store.ParticipantsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRoomService_JoinRoom_WrongState(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 2, 4)
	room.Status = domain.RoomStatusActive
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()

	_, err := roomService.JoinRoom(ctx, 3, 9)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomState))
}

func TestRoomService_JoinRoom_AlreadyInRoom(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(waitingRoom(3, 2, 4), nil).Once()
	store.ParticipantsRepo.On("CountPresent", ctx, uint(3)).Return(int64(2), nil).Once()
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).
		Return(&domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantJoined}, nil).Once()

	_, err := roomService.JoinRoom(ctx, 3, 9)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAlreadyInRoom))
	store.ParticipantsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRoomService_JoinRoom_NotFound(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(99)).Return(nil, repository.ErrRoomNotFound).Once()

	_, err := roomService.JoinRoom(ctx, 99, 9)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

// --- LeaveRoom ---

func TestRoomService_LeaveRoom_ActivePenalty(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	// active 房间，距计划结束还有约 20 分钟
	room := waitingRoom(3, 2, 4)
	room.Status = domain.RoomStatusActive
	room.ScheduledEndTime = time.Now().Add(20 * time.Minute)

	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantActive}
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).Return(participant, nil).Once()
	store.ParticipantsRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.Status == domain.ParticipantLeft && p.LeftEarly && p.PenaltyMinutes == 15 && p.LeftAt != nil
	})).Return(nil).Once()
	store.RoomsRepo.On("Save", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.CurrentParticipants == 1
	})).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.EventType == domain.EventUserLeft
	})).Return(nil).Once()
	state.On("DeleteRoomSnapshot", ctx, uint(3)).Return(nil).Once()

	result, err := roomService.LeaveRoom(ctx, 3, 9, "tired")

	require.NoError(t, err)
	assert.True(t, result.LeftEarly)
	assert.Equal(t, 15, result.PenaltyMinutes)
	store.AssertExpectations(t)
}

func TestRoomService_LeaveRoom_WaitingNoPenalty(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 2, 4)
	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantJoined}
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).Return(participant, nil).Once()
	store.ParticipantsRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.Status == domain.ParticipantLeft && !p.LeftEarly && p.PenaltyMinutes == 0
	})).Return(nil).Once()
	store.RoomsRepo.On("Save", ctx, mock.Anything).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.Anything).Return(nil).Once()
	state.On("DeleteRoomSnapshot", ctx, uint(3)).Return(nil).Once()

	result, err := roomService.LeaveRoom(ctx, 3, 9, "")

	require.NoError(t, err)
	assert.False(t, result.LeftEarly)
	assert.Equal(t, 0, result.PenaltyMinutes)
}

func TestRoomService_LeaveRoom_NotParticipant(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(waitingRoom(3, 2, 4), nil).Once()
	store.ParticipantsRepo.On("FindPresent", ctx, uint(3), uint(9)).
		Return(nil, repository.ErrParticipantNotFound).Once()

	_, err := roomService.LeaveRoom(ctx, 3, 9, "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrParticipantNotFound))
}

// --- StartRoom ---

func TestRoomService_StartRoom_Success(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 2, 4)
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()
	store.RoomsRepo.On("Save", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.Status == domain.RoomStatusActive && r.StartedAt != nil
	})).Return(nil).Once()
	store.ParticipantsRepo.On("ActivateJoined", ctx, uint(3)).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.EventType == domain.EventRoomStarted
	})).Return(nil).Once()
	state.On("DeleteRoomSnapshot", ctx, uint(3)).Return(nil).Once()

	err := roomService.StartRoom(ctx, 3, 1)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRoomService_StartRoom_NotCreator(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(waitingRoom(3, 2, 4), nil).Once()

	err := roomService.StartRoom(ctx, 3, 42)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotCreator))
	store.ParticipantsRepo.AssertNotCalled(t, "ActivateJoined", mock.Anything, mock.Anything)
}

func TestRoomService_StartRoom_WrongState(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 2, 4)
	room.Status = domain.RoomStatusCompleted
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(3)).Return(room, nil).Once()

	err := roomService.StartRoom(ctx, 3, 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomState))
}

// --- GetRoomByCode ---

func TestRoomService_GetRoomByCode(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	room := waitingRoom(3, 2, 4)
	store.RoomsRepo.On("FindByCode", ctx, "ABCD2345").Return(room, nil).Once()
	store.ParticipantsRepo.On("ListPresent", ctx, uint(3)).Return([]domain.Participant{
		{RoomID: 3, UserID: 1}, {RoomID: 3, UserID: 9},
	}, nil).Once()

	detail, err := roomService.GetRoomByCode(ctx, "ABCD2345")

	require.NoError(t, err)
	assert.Equal(t, uint(3), detail.Room.ID)
	assert.Len(t, detail.Participants, 2)
	store.AssertExpectations(t)
}

func TestRoomService_GetRoomByCode_NotFound(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	store.RoomsRepo.On("FindByCode", ctx, "ZZZZ9999").Return(nil, repository.ErrRoomNotFound).Once()

	_, err := roomService.GetRoomByCode(ctx, "ZZZZ9999")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomNotFound))
}

func TestRoomService_GetRoomByCode_EmptyCode(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)

	_, err := roomService.GetRoomByCode(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
	store.RoomsRepo.AssertNotCalled(t, "FindByCode", mock.Anything, mock.Anything)
}

// --- CompleteExpiredRooms ---

func TestRoomService_CompleteExpiredRooms(t *testing.T) {
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	roomService := service.NewRoomService(store, state)
	ctx := context.Background()

	expired := waitingRoom(5, 3, 4)
	expired.Status = domain.RoomStatusActive
	expired.ScheduledEndTime = time.Now().Add(-10 * time.Minute)

	store.RoomsRepo.On("ListExpiredActive", ctx, mock.AnythingOfType("time.Time")).
		Return([]uint{5}, nil).Once()
	store.RoomsRepo.On("FindByIDForUpdate", ctx, uint(5)).Return(expired, nil).Once()
	store.RoomsRepo.On("Save", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.Status == domain.RoomStatusCompleted && r.CurrentParticipants == 0
	})).Return(nil).Once()
	store.ParticipantsRepo.On("MarkAllLeft", ctx, uint(5)).Return(nil).Once()
	store.EventsRepo.On("Append", ctx, mock.MatchedBy(func(ev *domain.RoomEvent) bool {
		return ev.EventType == domain.EventRoomEnded
	})).Return(nil).Once()
	state.On("DeleteRoomSnapshot", ctx, uint(5)).Return(nil).Once()

	completed, err := roomService.CompleteExpiredRooms(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	store.AssertExpectations(t)
	state.AssertExpectations(t)
}
