package repository

import "context"

// Store 聚合持久层的各个 Repository，并提供事务边界。
//
// 所有多步写入（加入+计数、离开+罚时、开始+批量激活）必须通过
// WithinTx 执行：回调内拿到的 Store 的所有操作共享同一个数据库
// 事务，回调返回错误时整体回滚，绝不可观察到部分提交的状态。
type Store interface {
	Rooms() RoomRepository
	Participants() ParticipantRepository
	Events() EventRepository
	Users() UserRepository

	// WithinTx 在单个事务内执行 fn。嵌套调用复用外层事务。
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
