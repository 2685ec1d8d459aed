package domain

import "time"

// RoomSnapshot 是房间实时状态的缓存视图（存于 Redis，带 TTL）。
// 它永远可以从 Room + Participant 重建，绝不作为事实来源。
type RoomSnapshot struct {
	RoomID         uint       `json:"room_id"`
	Status         RoomStatus `json:"status"`
	ParticipantIDs []uint     `json:"participant_ids"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
