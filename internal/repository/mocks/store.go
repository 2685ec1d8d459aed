package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// Store 是 repository.Store 的测试替身。
// 它把各个 Repository Mock 聚合在一起，WithinTx 直接在自身上执行
// 回调，模拟"回调内外共享同一事务"的语义。
type Store struct {
	RoomsRepo        *RoomRepository
	ParticipantsRepo *ParticipantRepository
	EventsRepo       *EventRepository
	UsersRepo        *UserRepository

	// TxErr 不为 nil 时 WithinTx 直接返回该错误，模拟事务开启失败。
	TxErr error
}

// NewStore 创建带好全部子 Mock 的 Store。
func NewStore() *Store {
	return &Store{
		RoomsRepo:        new(RoomRepository),
		ParticipantsRepo: new(ParticipantRepository),
		EventsRepo:       new(EventRepository),
		UsersRepo:        new(UserRepository),
	}
}

func (s *Store) Rooms() repository.RoomRepository               { return s.RoomsRepo }
func (s *Store) Participants() repository.ParticipantRepository { return s.ParticipantsRepo }
func (s *Store) Events() repository.EventRepository             { return s.EventsRepo }
func (s *Store) Users() repository.UserRepository               { return s.UsersRepo }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.TxErr != nil {
		return s.TxErr
	}
	return fn(s)
}

// AssertExpectations 校验所有子 Mock 的预期。
func (s *Store) AssertExpectations(t mock.TestingT) {
	s.RoomsRepo.AssertExpectations(t)
	s.ParticipantsRepo.AssertExpectations(t)
	s.EventsRepo.AssertExpectations(t)
	s.UsersRepo.AssertExpectations(t)
}
