package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/hub"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
	"github.com/weixueshi04/TimeScheduleApp/internal/service"
)

// RoomHandler 封装了与自习室管理相关的 HTTP 处理逻辑。
// 生命周期变化通过 Hub 通知房间内的在线成员。
type RoomHandler struct {
	roomService    *service.RoomService
	sessionService *service.SessionService
	hub            *hub.Hub
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, sessionService *service.SessionService, h *hub.Hub) *RoomHandler {
	return &RoomHandler{roomService: roomService, sessionService: sessionService, hub: h}
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name               string    `json:"name" binding:"required,min=1,max=100"`
	Description        string    `json:"description" binding:"max=500"`
	DurationMinutes    int       `json:"duration_minutes" binding:"required"`
	ScheduledStartTime time.Time `json:"scheduled_start_time" binding:"required"`
	MaxParticipants    int       `json:"max_participants"`
	TaskCategory       string    `json:"task_category" binding:"max=50"`
}

// CreateRoom 处理创建新自习室的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, service.CreateRoomInput{
		Name:               req.Name,
		Description:        req.Description,
		DurationMinutes:    req.DurationMinutes,
		ScheduledStartTime: req.ScheduledStartTime,
		MaxParticipants:    req.MaxParticipants,
		TaskCategory:       req.TaskCategory,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room_id": room.ID, "room_code": room.RoomCode}).
		Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":   "Room created successfully",
		"room_id":   room.ID,
		"room_code": room.RoomCode,
		"room":      room,
	})
}

// JoinRoom 处理用户加入自习室的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	room, err := h.roomService.JoinRoom(c.Request.Context(), roomID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	// 通知已在线的房间成员
	h.hub.BroadcastUserEvent(roomID, domain.EventUserJoined, userID, nil)
	// 创建者可能在线但还没挂上房间频道，额外定向推送一条通知
	if room.CreatorID != userID {
		h.hub.SendToUser(room.CreatorID, "notification", gin.H{
			"type":    domain.EventUserJoined,
			"room_id": roomID,
			"user_id": userID,
		})
	}

	SuccessResponse(c, http.StatusOK, gin.H{
		"message": "Joined room successfully",
		"room":    room,
	})
}

// LeaveRoomRequest 定义离开房间请求的结构体
type LeaveRoomRequest struct {
	Reason string `json:"reason" binding:"max=50"`
}

// LeaveRoom 处理用户离开自习室的请求，响应中带提前离开的罚时信息
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req LeaveRoomRequest
	_ = c.ShouldBindJSON(&req) // reason 可选，解析失败按空处理

	result, err := h.roomService.LeaveRoom(c.Request.Context(), roomID, userID, req.Reason)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	h.hub.BroadcastUserEvent(roomID, domain.EventUserLeft, userID, map[string]any{
		"reason":     req.Reason,
		"left_early": result.LeftEarly,
	})

	SuccessResponse(c, http.StatusOK, gin.H{
		"message":         "Left room successfully",
		"left_early":      result.LeftEarly,
		"penalty_minutes": result.PenaltyMinutes,
	})
}

// StartRoom 由创建者启动自习会话
func (h *RoomHandler) StartRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	if err := h.roomService.StartRoom(c.Request.Context(), roomID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	h.hub.BroadcastEvent(roomID, domain.EventRoomStarted, gin.H{"room_id": roomID})
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Room session started"})
}

// GetRoom 返回房间详情及在场成员
func (h *RoomHandler) GetRoom(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	detail, err := h.roomService.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, detail)
}

// GetRoomByCode 通过分享的房间码查找房间
func (h *RoomHandler) GetRoomByCode(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	code := c.Param("roomCode")

	detail, err := h.roomService.GetRoomByCode(c.Request.Context(), code)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, detail)
}

// ListRooms 返回房间列表，支持状态过滤和分页
func (h *RoomHandler) ListRooms(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	rooms, err := h.roomService.ListRooms(c.Request.Context(), repository.RoomFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// ListMyRooms 返回当前用户参与过的房间
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListUserRooms(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// UpdateEnergyRequest 定义能量值更新请求的结构体
type UpdateEnergyRequest struct {
	EnergyLevel *int   `json:"energy_level" binding:"required"`
	FocusState  string `json:"focus_state" binding:"omitempty,max=20"`
}

// UpdateEnergy 通过 HTTP 更新能量值，效果与 WebSocket 指令一致
func (h *RoomHandler) UpdateEnergy(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req UpdateEnergyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "energy_level is required")
		return
	}

	if err := h.sessionService.UpdateEnergy(c.Request.Context(), roomID, userID, *req.EnergyLevel); err != nil {
		HandleServiceError(c, err)
		return
	}
	if req.FocusState != "" {
		if _, err := h.sessionService.SetFocusState(c.Request.Context(), roomID, userID, req.FocusState); err != nil {
			HandleServiceError(c, err)
			return
		}
	}

	payload := gin.H{
		"room_id":      roomID,
		"user_id":      userID,
		"energy_level": *req.EnergyLevel,
	}
	if req.FocusState != "" {
		payload["focus_state"] = req.FocusState
	}
	h.hub.BroadcastEvent(roomID, domain.EventEnergyUpdate, payload)
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Energy level updated"})
}

// ListEvents 返回房间最近的事件历史
func (h *RoomHandler) ListEvents(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.sessionService.ListEvents(c.Request.Context(), roomID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"events": events})
}

// parseRoomID 从 URL 参数解析房间 ID
func parseRoomID(c *gin.Context) (uint, bool) {
	roomIDStr := c.Param("roomId")
	roomID, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil || roomID == 0 {
		logrus.Warnf("Handler: Invalid room ID format: %s", roomIDStr)
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID format")
		return 0, false
	}
	return uint(roomID), true
}
