package repository

import (
	"context"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// EventRepository 定义了房间事件日志的追加与查询。
// 事件日志是只追加的审计记录，绝不修改或删除。
type EventRepository interface {
	// Append 追加一条事件。
	Append(ctx context.Context, ev *domain.RoomEvent) error

	// ListByRoom 返回房间最近的事件，按时间倒序，最多 limit 条。
	ListByRoom(ctx context.Context, roomID uint, limit int) ([]domain.RoomEvent, error)
}
