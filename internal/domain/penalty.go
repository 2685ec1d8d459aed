package domain

// ExitPenalty 根据距离计划结束的剩余分钟数计算提前退出的惩罚分钟数。
// 阶梯函数：越早退出惩罚越重，最后 5 分钟内退出不罚。
func ExitPenalty(remainingMinutes float64) int {
	switch {
	case remainingMinutes <= 5:
		return 0
	case remainingMinutes <= 15:
		return 5
	case remainingMinutes <= 30:
		return 15
	default:
		return 30
	}
}

// LeftEarly 判断在剩余 remainingMinutes 时退出是否算提前离开。
func LeftEarly(remainingMinutes float64) bool {
	return remainingMinutes > 5
}
