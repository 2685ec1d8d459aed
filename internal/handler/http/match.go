package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/service"
)

// MatchHandler 封装了匹配队列相关的 HTTP 处理逻辑
type MatchHandler struct {
	matchService *service.MatchService
}

// NewMatchHandler 创建 MatchHandler 实例
func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// EnqueueRequest 定义加入匹配队列请求的结构体
type EnqueueRequest struct {
	ScheduledStartTime time.Time `json:"scheduled_start_time" binding:"required"`
	ScheduledEndTime   time.Time `json:"scheduled_end_time" binding:"required"`
	TaskCategory       string    `json:"task_category" binding:"max=50"`
}

// Enqueue 处理加入匹配队列的请求，重复入队按最新偏好覆盖
func (h *MatchHandler) Enqueue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Enqueue: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	candidate, err := h.matchService.Enqueue(c.Request.Context(), userID, service.EnqueueInput{
		ScheduledStartTime: req.ScheduledStartTime,
		ScheduledEndTime:   req.ScheduledEndTime,
		TaskCategory:       req.TaskCategory,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":   "Joined matching queue",
		"candidate": candidate,
	})
}

// Withdraw 处理退出匹配队列的请求
func (h *MatchHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.matchService.Withdraw(c.Request.Context(), userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Withdrew from matching queue"})
}

// FindMatches 返回与当前用户兼容性最高的候选人列表
func (h *MatchHandler) FindMatches(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	matches, err := h.matchService.FindMatches(c.Request.Context(), userID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"matches": matches})
}
