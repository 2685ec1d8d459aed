package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/service"
	"github.com/weixueshi04/TimeScheduleApp/internal/tasks"
)

// RoomEventPersistHandler 处理房间事件的异步落库任务。
// 聊天和休息事件在广播后走这里写入事件表。
type RoomEventPersistHandler struct {
	sessionService *service.SessionService
}

// NewRoomEventPersistHandler 创建 Handler 实例。
func NewRoomEventPersistHandler(sessionService *service.SessionService) *RoomEventPersistHandler {
	if sessionService == nil {
		panic("SessionService cannot be nil for RoomEventPersistHandler")
	}
	return &RoomEventPersistHandler{sessionService: sessionService}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *RoomEventPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retryCount, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"retry":     retryCount,
	})

	var payload tasks.RoomEventPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		// 损坏的 payload 重试也没用
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{
		"room_id":    payload.RoomID,
		"event_type": payload.EventType,
	})

	if err := h.sessionService.RecordEvent(ctx, payload.RoomID, payload.UserID, payload.EventType, payload.Payload); err != nil {
		logCtx.WithError(err).Error("Failed to persist room event")
		return fmt.Errorf("failed to persist event %s for room %d: %w", payload.EventType, payload.RoomID, err)
	}

	logCtx.Debug("Room event persisted")
	return nil
}
