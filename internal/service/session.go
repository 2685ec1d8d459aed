package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// SessionService 负责进行中会话的成员状态：能量值、专注状态，
// 以及房间快照缓存的读取与重建。
type SessionService struct {
	store repository.Store
	state repository.StateRepository
}

// NewSessionService 创建 SessionService 实例。
func NewSessionService(store repository.Store, state repository.StateRepository) *SessionService {
	if store == nil {
		panic("Store cannot be nil for SessionService")
	}
	if state == nil {
		panic("StateRepository cannot be nil for SessionService")
	}
	return &SessionService{store: store, state: state}
}

// UpdateEnergy 更新成员能量值并落库对应事件。
func (s *SessionService) UpdateEnergy(ctx context.Context, roomID, userID uint, level int) error {
	if level < 0 || level > 100 {
		return validationError("energy level must be between 0 and 100")
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		participant, err := tx.Participants().FindPresent(ctx, roomID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		participant.EnergyLevel = level
		if err := tx.Participants().Save(ctx, participant); err != nil {
			return err
		}
		ev, err := domain.NewRoomEvent(roomID, userID, domain.EventEnergyUpdate, map[string]any{
			"energyLevel": level,
		})
		if err != nil {
			return err
		}
		return tx.Events().Append(ctx, ev)
	})
	if err != nil {
		if IsBusinessError(err) {
			return err
		}
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).
			Error("Failed to update energy level")
		return ErrInternalServer
	}
	return nil
}

// SetFocusState 更新成员专注状态，返回更新后的成员记录。
// 状态本身只更新成员行；break 起止事件由调用方异步落库。
func (s *SessionService) SetFocusState(ctx context.Context, roomID, userID uint, focusState string) (*domain.Participant, error) {
	if !domain.ValidFocusState(focusState) {
		return nil, validationError("invalid focus state: %s", focusState)
	}

	participant, err := s.store.Participants().FindPresent(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return nil, ErrParticipantNotFound
		}
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).
			Error("Failed to load participant")
		return nil, ErrInternalServer
	}
	participant.FocusState = domain.FocusState(focusState)
	if err := s.store.Participants().Save(ctx, participant); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).
			Error("Failed to save focus state")
		return nil, ErrInternalServer
	}
	return participant, nil
}

// RecordEvent 将一条房间事件落库。聊天和休息事件的异步持久化任务
// 最终通过这里写入。
func (s *SessionService) RecordEvent(ctx context.Context, roomID, userID uint, eventType string, payload map[string]any) error {
	ev, err := domain.NewRoomEvent(roomID, userID, eventType, payload)
	if err != nil {
		return err
	}
	if err := s.store.Events().Append(ctx, ev); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id":    roomID,
			"event_type": eventType,
		}).Error("Failed to persist room event")
		return err
	}
	return nil
}

// ListEvents 返回房间最近的事件历史。
func (s *SessionService) ListEvents(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error) {
	events, err := s.store.Events().ListByRoom(ctx, roomID, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list room events")
		return nil, ErrInternalServer
	}
	return events, nil
}

// GetSnapshot 读取房间快照，优先走缓存，未命中时从数据库重建并回填。
// 缓存故障降级为直接读库，只记日志不报错。
func (s *SessionService) GetSnapshot(ctx context.Context, roomID uint) (*domain.RoomSnapshot, error) {
	snapshot, err := s.state.GetRoomSnapshot(ctx, roomID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, repository.ErrSnapshotNotFound) {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Snapshot cache read failed, falling back to database")
	}

	room, err := s.store.Rooms().FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room for snapshot rebuild")
		return nil, ErrInternalServer
	}
	participants, err := s.store.Participants().ListPresent(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load participants for snapshot rebuild")
		return nil, ErrInternalServer
	}

	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	snapshot = &domain.RoomSnapshot{
		RoomID:         roomID,
		Status:         room.Status,
		ParticipantIDs: ids,
		CreatedAt:      room.CreatedAt,
		UpdatedAt:      room.UpdatedAt,
	}
	if err := s.state.SetRoomSnapshot(ctx, snapshot, snapshotTTL); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to backfill room snapshot cache")
	}
	return snapshot, nil
}
