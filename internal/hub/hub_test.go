package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/weixueshi04/TimeScheduleApp/internal/domain"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository"
	"github.com/weixueshi04/TimeScheduleApp/internal/repository/mocks"
	"github.com/weixueshi04/TimeScheduleApp/internal/service"
	"github.com/weixueshi04/TimeScheduleApp/internal/tasks"
)

// fakeEnqueuer 记录被投递的后台任务，代替真实的 asynq 客户端。
type fakeEnqueuer struct {
	enqueued []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

type hubFixture struct {
	hub   *Hub
	store *mocks.Store
	state *mocks.StateRepository
	taskq *fakeEnqueuer
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	store := mocks.NewStore()
	state := new(mocks.StateRepository)
	taskq := &fakeEnqueuer{}
	h := NewHub(
		service.NewRoomService(store, state),
		service.NewSessionService(store, state),
		store.UsersRepo,
		state,
		taskq,
	)
	return &hubFixture{hub: h, store: store, state: state, taskq: taskq}
}

// newTestClient 构造一个不挂真实连接的客户端，消息通过 send 通道断言。
func newTestClient(userID uint) *Client {
	return &Client{
		connID: "test-conn",
		userID: userID,
		send:   make(chan []byte, 8),
	}
}

// receiveEvent 从客户端 send 通道读取并解包下一条事件。
func receiveEvent(t *testing.T, c *Client) (string, map[string]any) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg.Type, msg.Payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return "", nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("expected no event, got: %s", data)
	default:
	}
}

func (f *hubFixture) attach(c *Client, roomID uint) {
	f.hub.roomsMu.Lock()
	f.hub.attachLocked(c, roomID)
	f.hub.roomsMu.Unlock()
}

func TestHub_AttachDetach(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)

	f.attach(client, 3)
	assert.True(t, f.hub.isSubscribed(client, 3))

	// 重复挂载应幂等
	f.attach(client, 3)
	f.hub.roomsMu.RLock()
	assert.Len(t, f.hub.rooms[3], 1)
	f.hub.roomsMu.RUnlock()

	f.hub.roomsMu.Lock()
	f.hub.detachLocked(client, 3)
	f.hub.roomsMu.Unlock()
	assert.False(t, f.hub.isSubscribed(client, 3))

	// 最后一个订阅者离开后房间条目应被清理
	f.hub.roomsMu.RLock()
	_, exists := f.hub.rooms[3]
	f.hub.roomsMu.RUnlock()
	assert.False(t, exists)
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	f := newHubFixture(t)
	sender := newTestClient(9)
	peer := newTestClient(11)
	f.attach(sender, 3)
	f.attach(peer, 3)

	f.hub.broadcastEventExcluding(3, domain.EventUserJoined, map[string]any{"user_id": 9}, sender)

	eventType, payload := receiveEvent(t, peer)
	assert.Equal(t, domain.EventUserJoined, eventType)
	assert.Equal(t, float64(9), payload["user_id"])
	assertNoEvent(t, sender)
}

func TestHub_BroadcastEvent_AllSubscribers(t *testing.T) {
	f := newHubFixture(t)
	a := newTestClient(9)
	b := newTestClient(11)
	f.attach(a, 3)
	f.attach(b, 3)

	f.hub.BroadcastEvent(3, domain.EventEnergyUpdate, map[string]any{"energy_level": 40})

	for _, c := range []*Client{a, b} {
		eventType, payload := receiveEvent(t, c)
		assert.Equal(t, domain.EventEnergyUpdate, eventType)
		assert.Equal(t, float64(40), payload["energy_level"])
	}
}

func TestHub_HandleJoinRoom(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)
	peer := newTestClient(11)
	f.attach(peer, 3)

	room := &domain.Room{ID: 3, RoomCode: "ABCD2345", Status: domain.RoomStatusWaiting}
	f.store.RoomsRepo.On("FindByID", mock.Anything, uint(3)).Return(room, nil)
	f.store.ParticipantsRepo.On("FindPresent", mock.Anything, uint(3), uint(9)).
		Return(&domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantJoined}, nil)
	f.state.On("GetRoomSnapshot", mock.Anything, uint(3)).
		Return(&domain.RoomSnapshot{RoomID: 3, Status: domain.RoomStatusWaiting, ParticipantIDs: []uint{1, 9}}, nil)
	f.store.UsersRepo.On("FindByID", mock.Anything, uint(9)).
		Return(&domain.User{ID: 9, Username: "bob"}, nil)

	raw, _ := json.Marshal(map[string]any{"type": "join_room", "payload": map[string]any{"room_id": 3}})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	// 加入者收到房间状态，其他订阅者收到 user_joined
	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "room_joined", eventType)
	assert.Equal(t, "ABCD2345", payload["room_code"])
	assert.True(t, f.hub.isSubscribed(client, 3))

	eventType, payload = receiveEvent(t, peer)
	assert.Equal(t, domain.EventUserJoined, eventType)
	assert.Equal(t, "bob", payload["username"])
}

func TestHub_HandleJoinRoom_NotParticipant(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)

	f.store.RoomsRepo.On("FindByID", mock.Anything, uint(3)).
		Return(&domain.Room{ID: 3, Status: domain.RoomStatusWaiting}, nil)
	f.store.ParticipantsRepo.On("FindPresent", mock.Anything, uint(3), uint(9)).
		Return(nil, repository.ErrParticipantNotFound)

	raw, _ := json.Marshal(map[string]any{"type": "join_room", "payload": map[string]any{"room_id": 3}})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "error", eventType)
	assert.Equal(t, "not a participant of this room", payload["message"])
	assert.False(t, f.hub.isSubscribed(client, 3))
}

func TestHub_HandleEnergyUpdate_RequiresSubscription(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)

	raw, _ := json.Marshal(map[string]any{
		"type":    "energy_update",
		"payload": map[string]any{"room_id": 3, "energy_level": 40},
	})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "error", eventType)
	assert.Equal(t, "join the room channel first", payload["message"])
}

func TestHub_HandleChatMessage(t *testing.T) {
	f := newHubFixture(t)
	sender := newTestClient(9)
	peer := newTestClient(11)
	f.attach(sender, 3)
	f.attach(peer, 3)

	f.store.UsersRepo.On("FindByID", mock.Anything, uint(9)).
		Return(&domain.User{ID: 9, Username: "bob"}, nil)

	raw, _ := json.Marshal(map[string]any{
		"type":    "chat_message",
		"payload": map[string]any{"room_id": 3, "content": "休息五分钟？"},
	})
	f.hub.handleCommand(HubMessage{Type: "command", Client: sender, RawData: raw})

	// 聊天消息广播给包括发送者在内的所有人
	for _, c := range []*Client{sender, peer} {
		eventType, payload := receiveEvent(t, c)
		assert.Equal(t, domain.EventChatMessage, eventType)
		assert.Equal(t, "休息五分钟？", payload["content"])
		assert.Equal(t, "bob", payload["username"])
	}

	// 持久化走后台任务
	require.Len(t, f.taskq.enqueued, 1)
	assert.Equal(t, tasks.TypeRoomEventPersist, f.taskq.enqueued[0].Type())
}

func TestHub_HandleChatMessage_ContentTooLong(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)
	f.attach(client, 3)

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	raw, _ := json.Marshal(map[string]any{
		"type":    "chat_message",
		"payload": map[string]any{"room_id": 3, "content": string(long)},
	})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "error", eventType)
	assert.Equal(t, "message content must be 1-500 characters", payload["message"])
	assert.Empty(t, f.taskq.enqueued)
}

func TestHub_UnknownCommand(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)

	raw, _ := json.Marshal(map[string]any{"type": "dance", "payload": map[string]any{}})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "error", eventType)
	assert.Equal(t, "unknown command: dance", payload["message"])
}

func TestHub_UnregisterBroadcastsDisconnectToAllRooms(t *testing.T) {
	f := newHubFixture(t)
	leaving := newTestClient(9)
	peerA := newTestClient(11)
	peerB := newTestClient(12)
	// 同一条连接挂在两个房间上，断线时两个房间都要收到通知
	f.attach(leaving, 3)
	f.attach(leaving, 5)
	f.attach(peerA, 3)
	f.attach(peerB, 5)

	f.store.UsersRepo.On("FindByID", mock.Anything, uint(9)).
		Return(&domain.User{ID: 9, Username: "bob"}, nil)
	f.state.On("SetUserOffline", mock.Anything, uint(9)).Return(nil).Once()

	f.hub.unregisterClient(leaving)

	for _, tc := range []struct {
		peer   *Client
		roomID float64
	}{
		{peerA, 3},
		{peerB, 5},
	} {
		eventType, payload := receiveEvent(t, tc.peer)
		assert.Equal(t, domain.EventUserLeft, eventType)
		assert.Equal(t, tc.roomID, payload["room_id"])
		assert.Equal(t, "disconnect", payload["reason"])
		assert.Equal(t, "bob", payload["username"])
	}

	assert.False(t, f.hub.isSubscribed(leaving, 3))
	assert.False(t, f.hub.isSubscribed(leaving, 5))
	f.hub.roomsMu.RLock()
	_, tracked := f.hub.clientRooms[leaving]
	f.hub.roomsMu.RUnlock()
	assert.False(t, tracked, "断线后不应再保留订阅记录")

	// send 通道应被关闭，WritePump 据此退出
	_, open := <-leaving.send
	assert.False(t, open)
	f.state.AssertExpectations(t)
}

func TestHub_SendToUser_Online(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)

	f.state.On("SetUserOnline", mock.Anything, uint(9), client.ConnID()).Return(nil).Once()
	f.hub.registerClient(client)

	f.state.On("GetUserConn", mock.Anything, uint(9)).Return(client.ConnID(), nil).Once()

	f.hub.SendToUser(9, "notification", map[string]any{"room_id": 3})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, "notification", eventType)
	assert.Equal(t, float64(3), payload["room_id"])
	f.state.AssertExpectations(t)
}

func TestHub_SendToUser_OfflineNoop(t *testing.T) {
	f := newHubFixture(t)

	f.state.On("GetUserConn", mock.Anything, uint(9)).Return("", repository.ErrNotFound).Once()

	// 不在线时静默丢弃，不 panic 也不投递
	f.hub.SendToUser(9, "notification", map[string]any{"room_id": 3})
	f.state.AssertExpectations(t)
}

func TestHub_HandleEnergyUpdate_CarriesFocusState(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)
	f.attach(client, 3)

	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantActive, FocusState: domain.FocusStateFocused}
	// 能量更新和专注状态更新各查一次成员
	f.store.ParticipantsRepo.On("FindPresent", mock.Anything, uint(3), uint(9)).Return(participant, nil).Twice()
	f.store.ParticipantsRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Participant")).Return(nil).Twice()
	f.store.EventsRepo.On("Append", mock.Anything, mock.AnythingOfType("*domain.RoomEvent")).Return(nil).Once()

	raw, _ := json.Marshal(map[string]any{
		"type":    "energy_update",
		"payload": map[string]any{"room_id": 3, "energy_level": 40, "focus_state": "distracted"},
	})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, domain.EventEnergyUpdate, eventType)
	assert.Equal(t, float64(40), payload["energy_level"])
	assert.Equal(t, "distracted", payload["focus_state"])
	assert.Equal(t, domain.FocusStateDistracted, participant.FocusState)
	f.store.AssertExpectations(t)
}

func TestHub_HandleBreakStarted_CarriesDuration(t *testing.T) {
	f := newHubFixture(t)
	client := newTestClient(9)
	f.attach(client, 3)

	participant := &domain.Participant{RoomID: 3, UserID: 9, Status: domain.ParticipantActive, FocusState: domain.FocusStateFocused}
	f.store.ParticipantsRepo.On("FindPresent", mock.Anything, uint(3), uint(9)).Return(participant, nil).Once()
	f.store.ParticipantsRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Participant")).Return(nil).Once()

	raw, _ := json.Marshal(map[string]any{
		"type":    "break_started",
		"payload": map[string]any{"room_id": 3, "duration": 10},
	})
	f.hub.handleCommand(HubMessage{Type: "command", Client: client, RawData: raw})

	eventType, payload := receiveEvent(t, client)
	assert.Equal(t, domain.EventBreakStarted, eventType)
	assert.Equal(t, float64(10), payload["duration"])
	assert.Equal(t, domain.FocusStateBreak, participant.FocusState)

	// 落库的事件里同样要带上休息时长
	require.Len(t, f.taskq.enqueued, 1)
	var persisted tasks.RoomEventPersistPayload
	require.NoError(t, json.Unmarshal(f.taskq.enqueued[0].Payload(), &persisted))
	assert.Equal(t, domain.EventBreakStarted, persisted.EventType)
	assert.Equal(t, float64(10), persisted.Payload["duration"])
}
