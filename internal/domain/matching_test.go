package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

// 构造测试候选人的辅助函数
func candidate(start, end time.Time, category string, rate, hours float64) domain.MatchingCandidate {
	return domain.MatchingCandidate{
		ScheduledStartTime: start,
		ScheduledEndTime:   end,
		TaskCategory:       category,
		CompletionRate:     rate,
		TotalFocusHours:    hours,
	}
}

func TestCompatibilityScore(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a    domain.MatchingCandidate
		b    domain.MatchingCandidate
		want int
	}{
		{
			name: "完全相同的两个候选人得满分",
			a:    candidate(base, base.Add(2*time.Hour), "coding", 80, 50),
			b:    candidate(base, base.Add(2*time.Hour), "coding", 80, 50),
			want: 100,
		},
		{
			name: "时间窗口完全不重叠时时间维度得零分",
			a:    candidate(base, base.Add(1*time.Hour), "reading", 80, 50),
			b:    candidate(base.Add(90*time.Minute), base.Add(150*time.Minute), "reading", 80, 50),
			want: 60,
		},
		{
			name: "时间窗口重叠一半",
			a:    candidate(base, base.Add(1*time.Hour), "reading", 80, 50),
			b:    candidate(base.Add(30*time.Minute), base.Add(90*time.Minute), "reading", 80, 50),
			want: 80,
		},
		{
			name: "任务类别不同时类别分减半",
			a:    candidate(base, base.Add(2*time.Hour), "math", 80, 50),
			b:    candidate(base, base.Add(2*time.Hour), "writing", 80, 50),
			want: 85,
		},
		{
			name: "任一方缺少任务类别时类别维度不得分",
			a:    candidate(base, base.Add(2*time.Hour), "", 80, 50),
			b:    candidate(base, base.Add(2*time.Hour), "coding", 80, 50),
			want: 70,
		},
		{
			name: "完成率相差50时完成率维度只剩一半",
			a:    candidate(base, base.Add(2*time.Hour), "coding", 90, 50),
			b:    candidate(base, base.Add(2*time.Hour), "coding", 40, 50),
			want: 90,
		},
		{
			name: "完成率相差100时完成率维度得零分",
			a:    candidate(base, base.Add(2*time.Hour), "coding", 100, 50),
			b:    candidate(base, base.Add(2*time.Hour), "coding", 0, 50),
			want: 80,
		},
		{
			name: "专注时长相差过大时画像维度得零分",
			a:    candidate(base, base.Add(2*time.Hour), "coding", 80, 150),
			b:    candidate(base, base.Add(2*time.Hour), "coding", 80, 30),
			want: 90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CompatibilityScore(tt.a, tt.b))
		})
	}
}

func TestCompatibilityScore_Symmetric(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := candidate(base, base.Add(1*time.Hour), "coding", 75, 20)
	b := candidate(base.Add(20*time.Minute), base.Add(2*time.Hour), "reading", 30, 90)

	assert.Equal(t, domain.CompatibilityScore(a, b), domain.CompatibilityScore(b, a),
		"匹配分应满足对称性")
}

func TestCompatibilityScore_Bounds(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	// 所有维度都最差的组合
	a := candidate(base, base.Add(1*time.Hour), "", 100, 500)
	b := candidate(base.Add(2*time.Hour), base.Add(3*time.Hour), "", 0, 0)

	score := domain.CompatibilityScore(a, b)
	assert.GreaterOrEqual(t, score, 0)
	assert.LessOrEqual(t, score, 100)
	assert.Equal(t, 0, score)
}
