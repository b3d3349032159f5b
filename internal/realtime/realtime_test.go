package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisPublisher_Publish(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(rdb, "rt:")

	want, err := json.Marshal(Message{Room: "customer:42", Event: EventNotification, Payload: map[string]any{"type": "BOOKING_ACCEPTED"}})
	require.NoError(t, err)
	mock.ExpectPublish("rt:customer:42", string(want)).SetVal(1)

	err = pub.Publish(context.Background(), "customer:42", EventNotification, map[string]any{"type": "BOOKING_ACCEPTED"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_Error(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(rdb, "rt:")

	mock.Regexp().ExpectPublish("rt:booking:1", `.*`).SetErr(assert.AnError)

	err := pub.Publish(context.Background(), "booking:1", EventChatMessage, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish booking:1")
}

func TestHub_DeliversToRoomMembersOnly(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, strings.Split(r.URL.Query().Get("rooms"), ","))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	alice, _, err := websocket.DefaultDialer.Dial(wsURL+"?rooms=customer:a,booking:1", nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(wsURL+"?rooms=provider:b", nil)
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return hub.RoomSize("booking:1") == 1 && hub.RoomSize("provider:b") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "booking:1", EventChatMessage, map[string]string{"content": "hello"}))

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "booking:1", msg.Room)
	assert.Equal(t, EventChatMessage, msg.Event)

	_ = bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob is not in the booking room")
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	assert.NoError(t, hub.Publish(context.Background(), "customer:nobody", EventNotification, nil))
	assert.Zero(t, hub.RoomSize("customer:nobody"))
}
