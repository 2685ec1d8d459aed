package domain

import "time"

// User 表示系统中的用户。
// 房间协调核心只把它当作用户目录：认证、取昵称、取历史统计。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // bcrypt 哈希
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email,omitempty"`
	Nickname  string    `gorm:"size:50" json:"nickname,omitempty"`
	Status    string    `gorm:"size:20;not null;default:active" json:"status"`

	// 历史统计，用于匹配条件快照
	TotalCompletedTasks int     `gorm:"not null;default:0" json:"total_completed_tasks"`
	TotalStudySessions  int     `gorm:"not null;default:0" json:"total_study_sessions"`
	TotalFocusHours     float64 `gorm:"not null;default:0" json:"total_focus_hours"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserStats 是匹配与房间创建所需的用户历史统计摘要。
type UserStats struct {
	CompletedTasks  int     `json:"completedTasks"`
	TotalSessions   int     `json:"totalSessions"`
	TotalFocusHours float64 `json:"totalFocusHours"`
}

// CompletionRate 返回完成率百分比；没有任何会话记录时为 0。
func (s UserStats) CompletionRate() float64 {
	if s.TotalSessions == 0 {
		return 0
	}
	return float64(s.CompletedTasks) / float64(s.TotalSessions) * 100
}

// Stats 提取用户的统计摘要。
func (u *User) Stats() UserStats {
	return UserStats{
		CompletedTasks:  u.TotalCompletedTasks,
		TotalSessions:   u.TotalStudySessions,
		TotalFocusHours: u.TotalFocusHours,
	}
}

// DisplayName 返回展示用昵称，缺省回退到用户名。
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
