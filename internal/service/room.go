package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 8
	roomCodeAttempts = 10

	// 房间快照缓存的 TTL
	snapshotTTL = 2 * time.Hour
)

// CreateRoomInput 是创建房间的请求参数。
type CreateRoomInput struct {
	Name               string
	Description        string
	DurationMinutes    int
	ScheduledStartTime time.Time
	MaxParticipants    int
	TaskCategory       string
}

// LeaveResult 是离开房间的结果：是否提前离开以及罚时分钟数。
type LeaveResult struct {
	LeftEarly      bool `json:"leftEarly"`
	PenaltyMinutes int  `json:"penaltyMinutes"`
}

// RoomDetail 是房间及其在场成员的组合视图。
type RoomDetail struct {
	Room         domain.Room          `json:"room"`
	Participants []domain.Participant `json:"participants"`
}

// RoomService 负责房间生命周期管理：创建、加入、离开、开始、过期清扫。
// 所有多步写入都在事务内执行，并对房间行加锁，保证容量检查与计数
// 更新不会被并发请求交错。
type RoomService struct {
	store repository.Store
	state repository.StateRepository
	now   func() time.Time
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(store repository.Store, state repository.StateRepository) *RoomService {
	if store == nil {
		panic("Store cannot be nil for RoomService")
	}
	if state == nil {
		panic("StateRepository cannot be nil for RoomService")
	}
	return &RoomService{
		store: store,
		state: state,
		now:   time.Now,
	}
}

// CreateRoom 创建一个新房间，创建者自动成为第一个成员。
// 匹配条件从创建者当前统计数据快照，之后不再变化。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, input CreateRoomInput) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)

	// 1. 参数校验
	if input.DurationMinutes < 15 {
		return nil, validationError("duration must be at least 15 minutes")
	}
	if input.MaxParticipants == 0 {
		input.MaxParticipants = 4
	}
	if input.MaxParticipants < 2 || input.MaxParticipants > 10 {
		return nil, validationError("max participants must be between 2 and 10")
	}
	if input.ScheduledStartTime.IsZero() {
		return nil, validationError("scheduled start time is required")
	}

	// 2. 分配唯一房间码
	roomCode, err := s.generateUniqueRoomCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return nil, err
	}
	logCtx = logCtx.WithField("room_code", roomCode)

	startTime := input.ScheduledStartTime
	endTime := startTime.Add(time.Duration(input.DurationMinutes) * time.Minute)

	var room *domain.Room
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		// 3. 读取创建者统计，快照匹配条件
		creator, err := tx.Users().FindByID(ctx, creatorID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load creator %d: %w", creatorID, err)
		}
		stats := creator.Stats()

		room = &domain.Room{
			RoomCode:            roomCode,
			CreatorID:           creatorID,
			Name:                input.Name,
			Description:         input.Description,
			Status:              domain.RoomStatusWaiting,
			MaxParticipants:     input.MaxParticipants,
			CurrentParticipants: 1,
			DurationMinutes:     input.DurationMinutes,
			ScheduledStartTime:  startTime,
			ScheduledEndTime:    endTime,
		}
		if err := room.SetMatchingCriteria(domain.MatchingCriteria{
			TaskCategory:       input.TaskCategory,
			CompletionRate:     stats.CompletionRate(),
			TotalFocusHours:    stats.TotalFocusHours,
			ScheduledStartTime: startTime,
			ScheduledEndTime:   endTime,
		}); err != nil {
			return err
		}

		// 4. 房间和创建者成员记录在同一事务内落库
		if err := tx.Rooms().Create(ctx, room); err != nil {
			return err
		}
		return tx.Participants().Create(ctx, &domain.Participant{
			RoomID:     room.ID,
			UserID:     creatorID,
			Role:       domain.RoleCreator,
			Status:     domain.ParticipantJoined,
			FocusState: domain.FocusStateFocused,
		})
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 唯一性检查通过后插入仍冲突，说明撞上了并发创建
			logCtx.WithError(err).Error("Room code collided on insert")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to persist new room")
		return nil, ErrInternalServer
	}

	// 5. 种入房间快照缓存（尽力而为，失败不影响创建）
	s.seedSnapshot(ctx, room, []uint{creatorID})

	logCtx.WithField("room_id", room.ID).Info("Room created successfully")
	return room, nil
}

// JoinRoom 处理用户加入房间。
// 成员插入、计数自增和 join 事件在同一事务内提交。
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID uint) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})

	var room *domain.Room
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		room, err = tx.Rooms().FindByIDForUpdate(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if !room.IsJoinable() {
			return ErrRoomState
		}
		// 容量以成员表的实际在场人数为准，计数列只是冗余展示字段
		present, err := tx.Participants().CountPresent(ctx, roomID)
		if err != nil {
			return err
		}
		if present >= int64(room.MaxParticipants) {
			return ErrRoomFull
		}

		// 同一 (room, user) 最多一条非 left 记录
		_, err = tx.Participants().FindPresent(ctx, roomID, userID)
		if err == nil {
			return ErrAlreadyInRoom
		}
		if !errors.Is(err, repository.ErrParticipantNotFound) {
			return err
		}

		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if err := tx.Participants().Create(ctx, &domain.Participant{
			RoomID:     roomID,
			UserID:     userID,
			Role:       domain.RoleMember,
			Status:     domain.ParticipantJoined,
			FocusState: domain.FocusStateFocused,
		}); err != nil {
			return err
		}

		room.CurrentParticipants++
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return err
		}

		ev, err := domain.NewRoomEvent(roomID, userID, domain.EventUserJoined, map[string]any{
			"username":  user.Username,
			"timestamp": s.now().UTC(),
		})
		if err != nil {
			return err
		}
		return tx.Events().Append(ctx, ev)
	})
	if err != nil {
		if IsBusinessError(err) {
			logCtx.WithError(err).Warn("Join room rejected")
			return nil, err
		}
		logCtx.WithError(err).Error("Failed to join room")
		return nil, ErrInternalServer
	}

	s.invalidateSnapshot(ctx, roomID)
	logCtx.Info("User joined room successfully")
	return room, nil
}

// LeaveRoom 处理用户离开房间。
// 只有房间处于 active 时才计算提前离开罚时；等待中的房间随时可以
// 无代价退出。
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID uint, reason string) (*LeaveResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "reason": reason})
	if reason == "" {
		reason = "left"
	}

	result := &LeaveResult{}
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		room, err := tx.Rooms().FindByIDForUpdate(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		participant, err := tx.Participants().FindPresent(ctx, roomID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		now := s.now()
		if room.Status == domain.RoomStatusActive {
			remaining := room.RemainingMinutes(now)
			result.PenaltyMinutes = domain.ExitPenalty(remaining)
			result.LeftEarly = domain.LeftEarly(remaining)
		}

		participant.Status = domain.ParticipantLeft
		participant.LeftAt = &now
		participant.LeftEarly = result.LeftEarly
		participant.PenaltyMinutes = result.PenaltyMinutes
		if err := tx.Participants().Save(ctx, participant); err != nil {
			return err
		}

		room.CurrentParticipants--
		if room.CurrentParticipants < 0 {
			room.CurrentParticipants = 0
		}
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return err
		}

		ev, err := domain.NewRoomEvent(roomID, userID, domain.EventUserLeft, map[string]any{
			"reason":    reason,
			"leftEarly": result.LeftEarly,
			"penalty":   result.PenaltyMinutes,
			"timestamp": now.UTC(),
		})
		if err != nil {
			return err
		}
		return tx.Events().Append(ctx, ev)
	})
	if err != nil {
		if IsBusinessError(err) {
			logCtx.WithError(err).Warn("Leave room rejected")
			return nil, err
		}
		logCtx.WithError(err).Error("Failed to leave room")
		return nil, ErrInternalServer
	}

	s.invalidateSnapshot(ctx, roomID)
	logCtx.WithFields(logrus.Fields{
		"left_early": result.LeftEarly,
		"penalty":    result.PenaltyMinutes,
	}).Info("User left room")
	return result, nil
}

// StartRoom 由创建者把房间从 waiting 推进到 active，
// 同时把所有 joined 成员批量置为 active。
func (s *RoomService) StartRoom(ctx context.Context, roomID, callerID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "caller_id": callerID})

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		room, err := tx.Rooms().FindByIDForUpdate(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		if room.CreatorID != callerID {
			return ErrNotCreator
		}
		if room.Status != domain.RoomStatusWaiting {
			return ErrRoomState
		}

		now := s.now()
		room.Status = domain.RoomStatusActive
		room.StartedAt = &now
		if err := tx.Rooms().Save(ctx, room); err != nil {
			return err
		}
		if err := tx.Participants().ActivateJoined(ctx, roomID); err != nil {
			return err
		}

		ev, err := domain.NewRoomEvent(roomID, callerID, domain.EventRoomStarted, map[string]any{
			"timestamp": now.UTC(),
		})
		if err != nil {
			return err
		}
		return tx.Events().Append(ctx, ev)
	})
	if err != nil {
		if IsBusinessError(err) {
			logCtx.WithError(err).Warn("Start room rejected")
			return err
		}
		logCtx.WithError(err).Error("Failed to start room")
		return ErrInternalServer
	}

	s.invalidateSnapshot(ctx, roomID)
	logCtx.Info("Room session started")
	return nil
}

// GetRoom 返回房间及其在场成员。
func (s *RoomService) GetRoom(ctx context.Context, roomID uint) (*RoomDetail, error) {
	room, err := s.store.Rooms().FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	participants, err := s.store.Participants().ListPresent(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load participants")
		return nil, ErrInternalServer
	}
	return &RoomDetail{Room: *room, Participants: participants}, nil
}

// GetRoomByCode 通过可分享的房间码查找房间，供受邀者在加入前查看。
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*RoomDetail, error) {
	if code == "" {
		return nil, validationError("room code is required")
	}
	room, err := s.store.Rooms().FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_code", code).Error("Failed to load room by code")
		return nil, ErrInternalServer
	}
	participants, err := s.store.Participants().ListPresent(ctx, room.ID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Error("Failed to load participants")
		return nil, ErrInternalServer
	}
	return &RoomDetail{Room: *room, Participants: participants}, nil
}

// ListRooms 按条件返回房间列表。
func (s *RoomService) ListRooms(ctx context.Context, filter repository.RoomFilter) ([]domain.Room, error) {
	rooms, err := s.store.Rooms().List(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to list rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// ListUserRooms 返回用户参与过的房间。
func (s *RoomService) ListUserRooms(ctx context.Context, userID uint, status string) ([]domain.Room, error) {
	rooms, err := s.store.Rooms().ListByUser(ctx, userID, status)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list user rooms")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// VerifyParticipant 确认用户是房间的在场成员，供连接层在把连接挂到
// 广播通道之前校验。返回成员记录和房间。
func (s *RoomService) VerifyParticipant(ctx context.Context, roomID, userID uint) (*domain.Participant, *domain.Room, error) {
	room, err := s.store.Rooms().FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, nil, ErrRoomNotFound
		}
		return nil, nil, ErrInternalServer
	}
	participant, err := s.store.Participants().FindPresent(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, nil, ErrParticipantNotFound
		}
		return nil, nil, ErrInternalServer
	}
	return participant, room, nil
}

// CompleteExpiredRooms 将所有已过计划结束时间的 active 房间收尾：
// 状态置为 completed，在场成员全部置为 left（正常结束不罚时），
// 追加结束事件并丢弃快照缓存。由后台清扫任务周期调用。
func (s *RoomService) CompleteExpiredRooms(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.store.Rooms().ListExpiredActive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired rooms: %w", err)
	}

	completed := 0
	for _, roomID := range ids {
		err := s.store.WithinTx(ctx, func(tx repository.Store) error {
			room, err := tx.Rooms().FindByIDForUpdate(ctx, roomID)
			if err != nil {
				return err
			}
			if room.Status != domain.RoomStatusActive {
				return nil // 已被并发处理
			}
			room.Status = domain.RoomStatusCompleted
			room.CurrentParticipants = 0
			if err := tx.Rooms().Save(ctx, room); err != nil {
				return err
			}
			if err := tx.Participants().MarkAllLeft(ctx, roomID); err != nil {
				return err
			}
			ev, err := domain.NewRoomEvent(roomID, room.CreatorID, domain.EventRoomEnded, map[string]any{
				"reason":    "expired",
				"timestamp": now.UTC(),
			})
			if err != nil {
				return err
			}
			return tx.Events().Append(ctx, ev)
		})
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to complete expired room")
			continue
		}
		s.invalidateSnapshot(ctx, roomID)
		completed++
	}
	return completed, nil
}

// --- 私有辅助函数 ---

// generateUniqueRoomCode 生成唯一的 8 位房间码。
// 重试耗尽视为硬失败，调用方必须放弃本次房间创建。
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code, err := randomRoomCode()
		if err != nil {
			return "", err
		}

		exists, err := s.store.Rooms().IsRoomCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)", attempt+1)
	}
	return "", ErrCodeExhausted
}

// randomRoomCode 从字母表里等概率抽取 8 个字符。
// 256 不是 36 的整数倍，超出最大整倍数的随机字节丢弃重抽，
// 避免偏向字母表前段。
func randomRoomCode() (string, error) {
	limit := 256 - 256%len(roomCodeAlphabet)
	code := make([]byte, roomCodeLength)
	buf := make([]byte, 1)
	for i := 0; i < roomCodeLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		code[i] = roomCodeAlphabet[int(buf[0])%len(roomCodeAlphabet)]
		i++
	}
	return string(code), nil
}

// seedSnapshot 在房间创建后写入初始快照缓存，失败只记日志。
func (s *RoomService) seedSnapshot(ctx context.Context, room *domain.Room, participantIDs []uint) {
	now := s.now()
	snapshot := &domain.RoomSnapshot{
		RoomID:         room.ID,
		Status:         room.Status,
		ParticipantIDs: participantIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.state.SetRoomSnapshot(ctx, snapshot, snapshotTTL); err != nil {
		logrus.WithError(err).WithField("room_id", room.ID).Warn("Failed to seed room snapshot cache")
	}
}

// invalidateSnapshot 使房间快照缓存失效，下一次读取时从数据库重建。
func (s *RoomService) invalidateSnapshot(ctx context.Context, roomID uint) {
	if err := s.state.DeleteRoomSnapshot(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to invalidate room snapshot cache")
	}
}

// IsBusinessError 判断错误是否属于应原样返回给调用方的业务错误。
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrUserNotFound, ErrRoomNotFound, ErrParticipantNotFound,
		ErrRoomState, ErrRoomFull, ErrAlreadyInRoom, ErrNotCreator,
		ErrNotInQueue, ErrCodeExhausted,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
