package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
)

// EnqueueInput 是加入匹配队列的请求参数。
type EnqueueInput struct {
	ScheduledStartTime time.Time
	ScheduledEndTime   time.Time
	TaskCategory       string
}

// ScoredMatch 是一个候选人及其与当前用户的兼容性得分。
type ScoredMatch struct {
	Candidate domain.MatchingCandidate `json:"candidate"`
	Score     int                      `json:"score"`
}

// MatchService 负责匹配队列：入队、出队和候选人评分。
// 队列本身存活在 Redis 中，重复入队按最新一次请求覆盖。
type MatchService struct {
	users repository.UserRepository
	state repository.StateRepository
	now   func() time.Time
}

// NewMatchService 创建 MatchService 实例。
func NewMatchService(users repository.UserRepository, state repository.StateRepository) *MatchService {
	if users == nil {
		panic("UserRepository cannot be nil for MatchService")
	}
	if state == nil {
		panic("StateRepository cannot be nil for MatchService")
	}
	return &MatchService{users: users, state: state, now: time.Now}
}

// Enqueue 把用户加入匹配队列。偏好来自请求参数，统计特征取自
// 用户当前数据的快照。
func (s *MatchService) Enqueue(ctx context.Context, userID uint, input EnqueueInput) (*domain.MatchingCandidate, error) {
	if input.ScheduledStartTime.IsZero() || input.ScheduledEndTime.IsZero() {
		return nil, validationError("scheduled start and end time are required")
	}
	if !input.ScheduledEndTime.After(input.ScheduledStartTime) {
		return nil, validationError("scheduled end time must be after start time")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load user for matching")
		return nil, ErrInternalServer
	}
	stats := user.Stats()

	candidate := domain.MatchingCandidate{
		UserID:             userID,
		ScheduledStartTime: input.ScheduledStartTime,
		ScheduledEndTime:   input.ScheduledEndTime,
		TaskCategory:       input.TaskCategory,
		CompletionRate:     stats.CompletionRate(),
		TotalFocusHours:    stats.TotalFocusHours,
		EnqueuedAt:         s.now(),
	}
	if err := s.state.EnqueueCandidate(ctx, candidate); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to enqueue matching candidate")
		return nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"user_id":       userID,
		"task_category": input.TaskCategory,
	}).Info("User joined matching queue")
	return &candidate, nil
}

// Withdraw 把用户移出匹配队列。不在队列中时返回 ErrNotInQueue。
func (s *MatchService) Withdraw(ctx context.Context, userID uint) error {
	removed, err := s.state.RemoveCandidate(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to remove matching candidate")
		return ErrInternalServer
	}
	if !removed {
		return ErrNotInQueue
	}
	logrus.WithField("user_id", userID).Info("User withdrew from matching queue")
	return nil
}

// FindMatches 为队列中的用户计算与其他候选人的兼容性得分，
// 按得分从高到低返回前 limit 个。
func (s *MatchService) FindMatches(ctx context.Context, userID uint, limit int) ([]ScoredMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	self, err := s.state.GetCandidate(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotInQueue
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to load matching candidate")
		return nil, ErrInternalServer
	}

	candidates, err := s.state.PeekQueue(ctx, 200)
	if err != nil {
		logrus.WithError(err).Error("Failed to read matching queue")
		return nil, ErrInternalServer
	}

	matches := make([]ScoredMatch, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == userID {
			continue
		}
		matches = append(matches, ScoredMatch{
			Candidate: c,
			Score:     domain.CompatibilityScore(*self, c),
		})
	}
	// 分数相同按入队先后排序，先到优先
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Candidate.EnqueuedAt.Before(matches[j].Candidate.EnqueuedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
