// Package gormpersistence 提供基于 GORM (MySQL) 的持久层实现。
package gormpersistence

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// GormStore 是 repository.Store 的 GORM 实现。
// WithinTx 内返回的 Store 绑定到同一个 *gorm.DB 事务句柄，
// 因此回调内的所有仓库操作天然共享该事务。
type GormStore struct {
	db           *gorm.DB
	rooms        *GormRoomRepository
	participants *GormParticipantRepository
	events       *GormEventRepository
	users        *GormUserRepository
}

// NewGormStore 创建 GormStore 实例。
func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		panic("database connection cannot be nil for GormStore")
	}
	return &GormStore{
		db:           db,
		rooms:        &GormRoomRepository{db: db},
		participants: &GormParticipantRepository{db: db},
		events:       &GormEventRepository{db: db},
		users:        &GormUserRepository{db: db},
	}
}

func (s *GormStore) Rooms() repository.RoomRepository               { return s.rooms }
func (s *GormStore) Participants() repository.ParticipantRepository { return s.participants }
func (s *GormStore) Events() repository.EventRepository             { return s.events }
func (s *GormStore) Users() repository.UserRepository               { return s.users }

// WithinTx 在单个数据库事务内执行 fn。
// fn 返回错误时 GORM 回滚整个事务，调用方看不到部分写入。
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}

// isDuplicateEntry 判断错误是否为 MySQL 唯一约束冲突 (errno 1062)。
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
