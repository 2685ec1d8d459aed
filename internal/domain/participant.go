package domain

import "time"

// ParticipantRole 表示成员在房间内的角色。
type ParticipantRole string

const (
	RoleCreator ParticipantRole = "creator"
	RoleMember  ParticipantRole = "member"
)

// ParticipantStatus 表示成员记录的状态。
// 不变量：同一 (room, user) 最多只有一条非 left 的记录。
type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantActive ParticipantStatus = "active"
	ParticipantLeft   ParticipantStatus = "left"
)

// FocusState 表示成员当前的专注状态。
type FocusState string

const (
	FocusStateFocused    FocusState = "focused"
	FocusStateBreak      FocusState = "break"
	FocusStateDistracted FocusState = "distracted"
)

// ValidFocusState 检查给定字符串是否是合法的专注状态。
func ValidFocusState(s string) bool {
	switch FocusState(s) {
	case FocusStateFocused, FocusStateBreak, FocusStateDistracted:
		return true
	}
	return false
}

// Participant 表示用户在某个房间内的成员记录。
// EnergyLevel 和 FocusState 是会话期间频繁变化的瞬态字段。
type Participant struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	RoomID         uint              `gorm:"index:idx_room_user;not null" json:"room_id"`
	UserID         uint              `gorm:"index:idx_room_user;not null" json:"user_id"`
	Role           ParticipantRole   `gorm:"size:20;not null" json:"role"`
	Status         ParticipantStatus `gorm:"size:20;index;not null" json:"status"`
	EnergyLevel    int               `gorm:"not null;default:100" json:"energy_level"` // 0..100
	FocusState     FocusState        `gorm:"size:20;not null;default:focused" json:"focus_state"`
	LeftEarly      bool              `gorm:"not null;default:false" json:"left_early"`
	PenaltyMinutes int               `gorm:"not null;default:0" json:"penalty_minutes"`
	JoinedAt       time.Time         `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt         *time.Time        `json:"left_at,omitempty"`
}

// IsPresent 判断该成员记录是否仍在房间内（未离开）。
func (p *Participant) IsPresent() bool {
	return p.Status != ParticipantLeft
}
