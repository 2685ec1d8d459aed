// Package domain 定义了自习室系统的核心数据模型。
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RoomStatus 表示自习室的生命周期状态。
// 状态只能单向推进：created → waiting → active → completed，
// waiting/active 可以侧向转移到 cancelled。不允许回退。
type RoomStatus string

const (
	RoomStatusCreated   RoomStatus = "created"
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusCompleted RoomStatus = "completed"
	RoomStatusCancelled RoomStatus = "cancelled"
)

// Room 表示一个有人数上限的定时自习室。
// 房间不做物理删除，结束/取消通过 Status 表达（软生命周期）。
type Room struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	RoomCode            string     `gorm:"uniqueIndex:idx_room_code;size:16;not null" json:"room_code"` // 8 位可分享的人类可读房间码
	CreatorID           uint       `gorm:"index;not null" json:"creator_id"`
	Name                string     `gorm:"size:100" json:"name"`
	Description         string     `gorm:"type:text" json:"description"`
	Status              RoomStatus `gorm:"size:20;index;not null" json:"status"`
	MaxParticipants     int        `gorm:"not null" json:"max_participants"`
	CurrentParticipants int        `gorm:"not null" json:"current_participants"` // 不变量: <= MaxParticipants
	DurationMinutes     int        `gorm:"not null" json:"duration_minutes"`
	ScheduledStartTime  time.Time  `gorm:"not null" json:"scheduled_start_time"`
	ScheduledEndTime    time.Time  `gorm:"index;not null" json:"scheduled_end_time"`
	MatchingCriteria    string     `gorm:"type:text" json:"matching_criteria"` // 创建时快照的匹配条件 JSON，之后不再修改
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchingCriteria 是房间创建时从创建者统计数据快照下来的匹配条件。
type MatchingCriteria struct {
	TaskCategory       string    `json:"taskCategory,omitempty"`
	CompletionRate     float64   `json:"completionRate"`
	TotalFocusHours    float64   `json:"totalFocusHours"`
	ScheduledStartTime time.Time `json:"scheduledStartTime"`
	ScheduledEndTime   time.Time `json:"scheduledEndTime"`
}

// SetMatchingCriteria 将匹配条件序列化后写入 Room。
func (r *Room) SetMatchingCriteria(mc MatchingCriteria) error {
	bytes, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("failed to marshal matching criteria: %w", err)
	}
	r.MatchingCriteria = string(bytes)
	return nil
}

// ParseMatchingCriteria 解析 Room 上存储的匹配条件 JSON。
func (r *Room) ParseMatchingCriteria() (MatchingCriteria, error) {
	var mc MatchingCriteria
	if r.MatchingCriteria == "" {
		return mc, nil
	}
	if err := json.Unmarshal([]byte(r.MatchingCriteria), &mc); err != nil {
		return mc, fmt.Errorf("failed to unmarshal matching criteria: %w", err)
	}
	return mc, nil
}

// RemainingMinutes 返回距离计划结束时间还剩多少分钟，已结束则为 0。
func (r *Room) RemainingMinutes(now time.Time) float64 {
	remaining := r.ScheduledEndTime.Sub(now).Minutes()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsJoinable 判断房间当前是否接受新成员加入。
func (r *Room) IsJoinable() bool {
	return r.Status == RoomStatusWaiting
}
