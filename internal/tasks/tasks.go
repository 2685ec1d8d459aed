package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	TypeRoomEventPersist = "room:event:persist" // 房间事件异步落库
	TypeRoomSweep        = "room:sweep"         // 过期房间清扫
)

// RoomEventPersistPayload 是房间事件落库任务的数据结构。
type RoomEventPersistPayload struct {
	RoomID    uint           `json:"room_id"`
	UserID    uint           `json:"user_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// NewRoomEventPersistTask 创建一个房间事件落库任务。
func NewRoomEventPersistTask(roomID, userID uint, eventType string, payload map[string]any) (*asynq.Task, error) {
	data, err := json.Marshal(RoomEventPersistPayload{
		RoomID:    roomID,
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomEventPersist, data), nil
}

// NewRoomSweepTask 创建一个过期房间清扫任务，由调度器周期触发。
func NewRoomSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRoomSweep, nil)
}
