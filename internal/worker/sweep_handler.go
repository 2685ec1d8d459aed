package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/service"
)

// RoomSweepHandler 处理周期性的过期房间清扫任务。
type RoomSweepHandler struct {
	roomService *service.RoomService
}

// NewRoomSweepHandler 创建 Handler 实例。
func NewRoomSweepHandler(roomService *service.RoomService) *RoomSweepHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{roomService: roomService}
}

// ProcessTask 实现 asynq.Handler 接口。
// 单个房间收尾失败不会让整个清扫任务重试，失败的房间留给下一轮。
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	completed, err := h.roomService.CompleteExpiredRooms(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Room sweep failed")
		return err
	}
	if completed > 0 {
		logCtx.WithField("completed", completed).Info("Expired rooms completed")
	}
	return nil
}
