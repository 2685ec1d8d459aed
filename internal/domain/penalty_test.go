package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
)

func TestExitPenalty(t *testing.T) {
	tests := []struct {
		name             string
		remainingMinutes float64
		want             int
	}{
		{"会话已结束", 0, 0},
		{"最后5分钟内不罚", 5, 0},
		{"剩余不到15分钟罚5分钟", 10, 5},
		{"剩余恰好15分钟罚5分钟", 15, 5},
		{"剩余不到30分钟罚15分钟", 20, 15},
		{"剩余恰好30分钟罚15分钟", 30, 15},
		{"剩余超过30分钟罚30分钟", 31, 30},
		{"刚开始就退出罚30分钟", 120, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ExitPenalty(tt.remainingMinutes))
		})
	}
}

func TestLeftEarly(t *testing.T) {
	assert.False(t, domain.LeftEarly(0))
	assert.False(t, domain.LeftEarly(5))
	assert.True(t, domain.LeftEarly(5.5))
	assert.True(t, domain.LeftEarly(60))
}
