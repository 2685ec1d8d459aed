package domain

import (
	"math"
	"time"
)

// MatchingCandidate 表示匹配队列中的一个候选用户。
// 队列实体是临时的：匹配成功或主动撤回后即删除。
type MatchingCandidate struct {
	UserID             uint      `json:"userId"`
	ScheduledStartTime time.Time `json:"scheduledStartTime"`
	ScheduledEndTime   time.Time `json:"scheduledEndTime"`
	TaskCategory       string    `json:"taskCategory,omitempty"`
	CompletionRate     float64   `json:"completionRate"`
	TotalFocusHours    float64   `json:"totalFocusHours"`
	EnqueuedAt         time.Time `json:"enqueuedAt"`
}

// 各维度的满分权重。
const (
	scoreWeightTime       = 40.0
	scoreWeightCategory   = 30.0
	scoreWeightCompletion = 20.0
	scoreWeightProfile    = 10.0
)

// CompatibilityScore 计算两个候选人的匹配分，范围 [0, 100]。
// 加权和：时间重叠 40 + 任务类别 30 + 完成率相近 20 + 专注画像相近 10，
// 各项下限为 0。纯函数，结果对称：score(a,b) == score(b,a)。
func CompatibilityScore(a, b MatchingCandidate) int {
	var score float64

	// 时间窗口重叠：重叠分钟数 / 平均时长
	overlapStart := a.ScheduledStartTime
	if b.ScheduledStartTime.After(overlapStart) {
		overlapStart = b.ScheduledStartTime
	}
	overlapEnd := a.ScheduledEndTime
	if b.ScheduledEndTime.Before(overlapEnd) {
		overlapEnd = b.ScheduledEndTime
	}
	overlapMinutes := overlapEnd.Sub(overlapStart).Minutes()
	if overlapMinutes < 0 {
		overlapMinutes = 0
	}
	durationA := a.ScheduledEndTime.Sub(a.ScheduledStartTime).Minutes()
	durationB := b.ScheduledEndTime.Sub(b.ScheduledStartTime).Minutes()
	avgDuration := (durationA + durationB) / 2
	if avgDuration > 0 {
		score += overlapMinutes / avgDuration * scoreWeightTime
	}

	// 任务类别：同类满分，异类减半，缺失不得分
	if a.TaskCategory != "" && b.TaskCategory != "" {
		if a.TaskCategory == b.TaskCategory {
			score += scoreWeightCategory
		} else {
			score += scoreWeightCategory / 2
		}
	}

	// 完成率相近度
	rateDiff := math.Abs(a.CompletionRate - b.CompletionRate)
	score += math.Max(0, scoreWeightCompletion-rateDiff/5)

	// 历史专注时长相近度
	hoursDiff := math.Abs(a.TotalFocusHours - b.TotalFocusHours)
	score += math.Max(0, scoreWeightProfile-hoursDiff/10)

	return int(math.Min(100, math.Round(score)))
}
