package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// 房间事件类型。事件日志只追加，用于审计与回放，不用于服务实时状态。
const (
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventEnergyUpdate = "energy_update"
	EventBreakStarted = "break_started"
	EventBreakEnded   = "break_ended"
	EventChatMessage  = "chat_message"
	EventRoomStarted  = "room_started"
	EventRoomEnded    = "room_ended"
)

// RoomEvent 是房间事件日志中的一条记录（write-once，不修改不删除）。
type RoomEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index;not null" json:"room_id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	EventType string    `gorm:"size:50;not null" json:"event_type"`
	Data      string    `gorm:"type:text" json:"data"` // 事件负载 JSON
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// NewRoomEvent 构造一条事件记录并序列化负载。
func NewRoomEvent(roomID, userID uint, eventType string, payload any) (*RoomEvent, error) {
	ev := &RoomEvent{
		RoomID:    roomID,
		UserID:    userID,
		EventType: eventType,
	}
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		ev.Data = string(bytes)
	}
	return ev, nil
}
