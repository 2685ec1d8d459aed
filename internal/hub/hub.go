package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
	"github.com/weixueshi04/TimeScheduleApp/internal/service"
	"github.com/weixueshi04/TimeScheduleApp/internal/tasks"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// TaskEnqueuer 是后台任务入队的最小接口，*asynq.Client 满足它。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "command"
	Client  *Client // 来源客户端
	RawData []byte  // 仅用于 command（原始 WebSocket 消息）
}

// Envelope 是 WebSocket 消息的统一信封格式。
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type roomRefPayload struct {
	RoomID uint `json:"room_id"`
}

type energyPayload struct {
	RoomID      uint   `json:"room_id"`
	EnergyLevel int    `json:"energy_level"`
	FocusState  string `json:"focus_state,omitempty"`
}

type breakPayload struct {
	RoomID uint `json:"room_id"`
	// 休息时长（分钟），仅 break_started 携带
	Duration int `json:"duration,omitempty"`
}

type focusPayload struct {
	RoomID     uint   `json:"room_id"`
	FocusState string `json:"focus_state"`
}

type chatPayload struct {
	RoomID  uint   `json:"room_id"`
	Content string `json:"content"`
}

// Hub 维护活跃客户端集合并协调实时消息的分发。
// 一条连接可以同时订阅多个房间，按房间维度广播。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool，按房间组织的订阅关系
	rooms map[uint]map[*Client]bool
	// map[*Client]map[roomID]bool，反向索引，断线清理用
	clientRooms map[*Client]map[uint]bool
	// map[connID]*Client，定向推送时用 Redis 里的连接 ID 反查客户端
	conns   map[string]*Client
	roomsMu sync.RWMutex

	roomService    *service.RoomService
	sessionService *service.SessionService
	users          repository.UserRepository
	state          repository.StateRepository
	taskq          TaskEnqueuer
}

// NewHub 创建并返回一个新的 Hub 实例。
func NewHub(roomService *service.RoomService, sessionService *service.SessionService,
	users repository.UserRepository, state repository.StateRepository, taskq TaskEnqueuer) *Hub {
	if roomService == nil {
		panic("RoomService cannot be nil for Hub")
	}
	if sessionService == nil {
		panic("SessionService cannot be nil for Hub")
	}
	if users == nil {
		panic("UserRepository cannot be nil for Hub")
	}
	if state == nil {
		panic("StateRepository cannot be nil for Hub")
	}
	return &Hub{
		messageChan:    make(chan HubMessage, 512),
		rooms:          make(map[uint]map[*Client]bool),
		clientRooms:    make(map[*Client]map[uint]bool),
		conns:          make(map[string]*Client),
		roomService:    roomService,
		sessionService: sessionService,
		users:          users,
		state:          state,
		taskq:          taskq,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "command":
			// 异步处理客户端指令，避免阻塞 Hub 主循环
			go h.handleCommand(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列（非阻塞）。
// 返回 true 表示成功入队，false 表示队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// BroadcastEvent 向房间内所有已订阅的连接广播一个事件。
// 供 HTTP 处理层在房间生命周期变化后通知在线成员。
func (h *Hub) BroadcastEvent(roomID uint, eventType string, payload any) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal broadcast event")
		return
	}
	h.broadcast(roomID, data, nil)
}

// BroadcastUserEvent 广播一个用户维度的事件，自动带上用户名。
func (h *Hub) BroadcastUserEvent(roomID uint, eventType string, userID uint, extra map[string]any) {
	payload := map[string]any{
		"room_id":  roomID,
		"user_id":  userID,
		"username": h.lookupUsername(userID),
	}
	for k, v := range extra {
		payload[k] = v
	}
	h.BroadcastEvent(roomID, eventType, payload)
}

// SendToUser 向单个用户的在线连接定向推送一个事件。
// 连接 ID 从 Redis 的在线状态解析；用户不在线时静默丢弃。
func (h *Hub) SendToUser(userID uint, eventType string, payload any) {
	connID, err := h.state.GetUserConn(context.Background(), userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("user_id", userID).Warn("Failed to resolve user connection")
		}
		return
	}

	h.roomsMu.RLock()
	client, ok := h.conns[connID]
	h.roomsMu.RUnlock()
	if !ok {
		// Redis 记录还在但连接已不挂在本实例上
		logrus.WithFields(logrus.Fields{"user_id": userID, "conn_id": connID}).
			Debug("User connection not found on this instance")
		return
	}
	h.sendEvent(client, eventType, payload)
}

// --- 注册与注销 ---

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": client.UserID(),
		"conn_id": client.ConnID(),
	})

	h.roomsMu.Lock()
	if _, ok := h.clientRooms[client]; !ok {
		h.clientRooms[client] = make(map[uint]bool)
	}
	h.conns[client.ConnID()] = client
	h.roomsMu.Unlock()

	// 在线状态写入 Redis，供跨实例查询
	if err := h.state.SetUserOnline(context.Background(), client.UserID(), client.ConnID()); err != nil {
		logCtx.WithError(err).Warn("Failed to mark user online")
	}
	logCtx.Info("Client registered to Hub")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": client.UserID(),
		"conn_id": client.ConnID(),
	})

	// 先收集该连接订阅的房间，再广播离开，最后清理订阅关系
	h.roomsMu.Lock()
	subscribed := make([]uint, 0, len(h.clientRooms[client]))
	for roomID := range h.clientRooms[client] {
		subscribed = append(subscribed, roomID)
	}
	h.roomsMu.Unlock()

	username := h.lookupUsername(client.UserID())
	for _, roomID := range subscribed {
		h.broadcastEventExcluding(roomID, domain.EventUserLeft, map[string]any{
			"room_id":  roomID,
			"user_id":  client.UserID(),
			"username": username,
			"reason":   "disconnect",
		}, client)
	}

	h.roomsMu.Lock()
	for _, roomID := range subscribed {
		h.detachLocked(client, roomID)
	}
	delete(h.clientRooms, client)
	delete(h.conns, client.ConnID())
	h.roomsMu.Unlock()

	// 关闭 send 通道，使 WritePump 退出；防止重复关闭
	select {
	case <-client.send:
		logCtx.Warn("Client send channel already closed or has data during unregister")
	default:
		close(client.send)
	}

	if err := h.state.SetUserOffline(context.Background(), client.UserID()); err != nil {
		logCtx.WithError(err).Warn("Failed to mark user offline")
	}
	logCtx.Info("Client unregistered from Hub")
}

// --- 指令分发 ---

func (h *Hub) handleCommand(msg HubMessage) {
	ctx := context.Background()
	client := msg.Client
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": client.UserID(),
		"conn_id": client.ConnID(),
	})

	var env Envelope
	if err := json.Unmarshal(msg.RawData, &env); err != nil {
		logCtx.WithError(err).Debug("Failed to parse client message")
		h.sendError(client, "invalid message format")
		return
	}

	switch env.Type {
	case "join_room":
		h.handleJoinRoom(ctx, client, env.Payload)
	case "leave_room":
		h.handleLeaveRoom(ctx, client, env.Payload)
	case "energy_update":
		h.handleEnergyUpdate(ctx, client, env.Payload)
	case "focus_state_change":
		h.handleFocusChange(ctx, client, env.Payload)
	case "break_started":
		h.handleBreak(ctx, client, env.Payload, true)
	case "break_ended":
		h.handleBreak(ctx, client, env.Payload, false)
	case "chat_message":
		h.handleChatMessage(ctx, client, env.Payload)
	default:
		logCtx.WithField("command", env.Type).Debug("Unknown client command")
		h.sendError(client, "unknown command: "+env.Type)
	}
}

// handleJoinRoom 把连接挂到房间的广播通道上。
// 前提是用户已通过 HTTP 接口成为房间成员。
func (h *Hub) handleJoinRoom(ctx context.Context, client *Client, raw json.RawMessage) {
	var p roomRefPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}

	_, room, err := h.roomService.VerifyParticipant(ctx, p.RoomID, client.UserID())
	if err != nil {
		h.sendError(client, "not a participant of this room")
		return
	}

	h.roomsMu.Lock()
	h.attachLocked(client, p.RoomID)
	h.roomsMu.Unlock()

	snapshot, err := h.sessionService.GetSnapshot(ctx, p.RoomID)
	var participantIDs []uint
	if err == nil {
		participantIDs = snapshot.ParticipantIDs
	}

	h.sendEvent(client, "room_joined", map[string]any{
		"room_id":         room.ID,
		"room_code":       room.RoomCode,
		"status":          room.Status,
		"participant_ids": participantIDs,
	})
	h.broadcastEventExcluding(p.RoomID, domain.EventUserJoined, map[string]any{
		"room_id":  p.RoomID,
		"user_id":  client.UserID(),
		"username": h.lookupUsername(client.UserID()),
	}, client)
}

func (h *Hub) handleLeaveRoom(_ context.Context, client *Client, raw json.RawMessage) {
	var p roomRefPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}

	h.roomsMu.Lock()
	h.detachLocked(client, p.RoomID)
	h.roomsMu.Unlock()

	h.sendEvent(client, "room_left", map[string]any{"room_id": p.RoomID})
	h.broadcastEventExcluding(p.RoomID, domain.EventUserLeft, map[string]any{
		"room_id":  p.RoomID,
		"user_id":  client.UserID(),
		"username": h.lookupUsername(client.UserID()),
		"reason":   "left",
	}, client)
}

func (h *Hub) handleEnergyUpdate(ctx context.Context, client *Client, raw json.RawMessage) {
	var p energyPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}
	if !h.isSubscribed(client, p.RoomID) {
		h.sendError(client, "join the room channel first")
		return
	}
	if err := h.sessionService.UpdateEnergy(ctx, p.RoomID, client.UserID(), p.EnergyLevel); err != nil {
		h.sendError(client, serviceErrorMessage(err))
		return
	}
	if p.FocusState != "" {
		if _, err := h.sessionService.SetFocusState(ctx, p.RoomID, client.UserID(), p.FocusState); err != nil {
			h.sendError(client, serviceErrorMessage(err))
			return
		}
	}

	// 能量变化广播给房间内所有人，包括发送者
	payload := map[string]any{
		"room_id":      p.RoomID,
		"user_id":      client.UserID(),
		"energy_level": p.EnergyLevel,
	}
	if p.FocusState != "" {
		payload["focus_state"] = p.FocusState
	}
	h.BroadcastEvent(p.RoomID, domain.EventEnergyUpdate, payload)
}

func (h *Hub) handleFocusChange(ctx context.Context, client *Client, raw json.RawMessage) {
	var p focusPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}
	if !h.isSubscribed(client, p.RoomID) {
		h.sendError(client, "join the room channel first")
		return
	}
	if _, err := h.sessionService.SetFocusState(ctx, p.RoomID, client.UserID(), p.FocusState); err != nil {
		h.sendError(client, serviceErrorMessage(err))
		return
	}
	h.BroadcastEvent(p.RoomID, "focus_state_change", map[string]any{
		"room_id":     p.RoomID,
		"user_id":     client.UserID(),
		"focus_state": p.FocusState,
	})
}

// handleBreak 处理休息开始/结束：更新专注状态、全房间广播、
// 异步落库对应事件。
func (h *Hub) handleBreak(ctx context.Context, client *Client, raw json.RawMessage, started bool) {
	var p breakPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}
	if !h.isSubscribed(client, p.RoomID) {
		h.sendError(client, "join the room channel first")
		return
	}

	focusState := string(domain.FocusStateBreak)
	eventType := domain.EventBreakStarted
	if !started {
		focusState = string(domain.FocusStateFocused)
		eventType = domain.EventBreakEnded
	}
	if _, err := h.sessionService.SetFocusState(ctx, p.RoomID, client.UserID(), focusState); err != nil {
		h.sendError(client, serviceErrorMessage(err))
		return
	}

	payload := map[string]any{
		"room_id": p.RoomID,
		"user_id": client.UserID(),
	}
	persisted := map[string]any{
		"timestamp": time.Now().UTC(),
	}
	if started && p.Duration > 0 {
		payload["duration"] = p.Duration
		persisted["duration"] = p.Duration
	}
	h.BroadcastEvent(p.RoomID, eventType, payload)
	h.enqueueEventPersist(p.RoomID, client.UserID(), eventType, persisted)
}

func (h *Hub) handleChatMessage(_ context.Context, client *Client, raw json.RawMessage) {
	var p chatPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == 0 {
		h.sendError(client, "room_id is required")
		return
	}
	if p.Content == "" || len(p.Content) > 500 {
		h.sendError(client, "message content must be 1-500 characters")
		return
	}
	if !h.isSubscribed(client, p.RoomID) {
		h.sendError(client, "join the room channel first")
		return
	}

	now := time.Now().UTC()
	payload := map[string]any{
		"room_id":   p.RoomID,
		"user_id":   client.UserID(),
		"username":  h.lookupUsername(client.UserID()),
		"content":   p.Content,
		"timestamp": now,
	}
	// 聊天消息广播给所有人，持久化走后台任务
	h.BroadcastEvent(p.RoomID, domain.EventChatMessage, payload)
	h.enqueueEventPersist(p.RoomID, client.UserID(), domain.EventChatMessage, map[string]any{
		"content":   p.Content,
		"timestamp": now,
	})
}

// --- 订阅关系维护（调用方需持有 roomsMu 写锁） ---

func (h *Hub) attachLocked(client *Client, roomID uint) {
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	if _, ok := h.clientRooms[client]; !ok {
		h.clientRooms[client] = make(map[uint]bool)
	}
	h.clientRooms[client][roomID] = true
}

func (h *Hub) detachLocked(client *Client, roomID uint) {
	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, client)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if subs, ok := h.clientRooms[client]; ok {
		delete(subs, roomID)
	}
}

func (h *Hub) isSubscribed(client *Client, roomID uint) bool {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.clientRooms[client][roomID]
}

// --- 发送与广播 ---

// broadcast 将消息发送给指定房间的所有客户端，exclude 不为 nil 时跳过它。
func (h *Hub) broadcast(roomID uint, message []byte, exclude *Client) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	clientsToSend := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != exclude {
				clientsToSend = append(clientsToSend, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	if len(clientsToSend) == 0 {
		return
	}
	for _, client := range clientsToSend {
		// 非阻塞发送，避免单个慢客户端阻塞广播
		select {
		case client.send <- message:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id":          roomID,
				"receiver_user_id": client.UserID(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

func (h *Hub) broadcastEventExcluding(roomID uint, eventType string, payload any, exclude *Client) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal broadcast event")
		return
	}
	h.broadcast(roomID, data, exclude)
}

func (h *Hub) sendEvent(client *Client, eventType string, payload any) {
	data, err := marshalEvent(eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to marshal event")
		return
	}
	select {
	case client.send <- data:
	default:
		logrus.WithField("user_id", client.UserID()).Warn("Client send channel full, message dropped")
	}
}

func (h *Hub) sendError(client *Client, message string) {
	h.sendEvent(client, "error", map[string]any{"message": message})
}

// --- 辅助函数 ---

func marshalEvent(eventType string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
}

func (h *Hub) lookupUsername(userID uint) string {
	user, err := h.users.FindByID(context.Background(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("Failed to resolve username")
		return ""
	}
	return user.DisplayName()
}

// enqueueEventPersist 把事件持久化任务丢进后台队列，失败只记日志。
func (h *Hub) enqueueEventPersist(roomID, userID uint, eventType string, payload map[string]any) {
	if h.taskq == nil {
		return
	}
	task, err := tasks.NewRoomEventPersistTask(roomID, userID, eventType, payload)
	if err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to build event persist task")
		return
	}
	if _, err := h.taskq.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("default")); err != nil {
		logrus.WithError(err).WithField("event_type", eventType).Error("Failed to enqueue event persist task")
	}
}

// serviceErrorMessage 把业务错误翻译成可回传给客户端的短消息。
func serviceErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if service.IsBusinessError(err) {
		return err.Error()
	}
	return "internal error"
}
