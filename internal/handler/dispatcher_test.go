package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.arena/internal/model"
	"sudooom.arena/internal/proto"
	"sudooom.arena/internal/room"
)

type call struct {
	method string
	conn   model.ConnID
	args   []any
}

// fakeService 记录调用并按配置返回错误
type fakeService struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (f *fakeService) record(method string, conn model.ConnID, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("service exploded")
	}
	f.calls = append(f.calls, call{method: method, conn: conn, args: args})
	return f.err
}

func (f *fakeService) CreateRoom(ctx context.Context, conn model.ConnID, req proto.CreateRoomRequest) (proto.RoomJoined, error) {
	err := f.record("CreateRoom", conn, req)
	return proto.RoomJoined{RoomID: "r1", PlayerID: 1}, err
}

func (f *fakeService) JoinRoom(ctx context.Context, conn model.ConnID, req proto.JoinRoomRequest) (proto.RoomJoined, error) {
	err := f.record("JoinRoom", conn, req)
	return proto.RoomJoined{RoomID: req.RoomID, PlayerID: 2}, err
}

func (f *fakeService) LeaveRoom(ctx context.Context, conn model.ConnID) error {
	return f.record("LeaveRoom", conn)
}

func (f *fakeService) Disconnect(ctx context.Context, conn model.ConnID) {
	_ = f.record("Disconnect", conn)
}

func (f *fakeService) Move(ctx context.Context, conn model.ConnID, x, y float64) error {
	return f.record("Move", conn, x, y)
}

func (f *fakeService) PlaceBomb(ctx context.Context, conn model.ConnID, x, y float64) error {
	return f.record("PlaceBomb", conn, x, y)
}

func (f *fakeService) CollectPowerUp(ctx context.Context, conn model.ConnID, id model.PowerUpID) error {
	return f.record("CollectPowerUp", conn, id)
}

func (f *fakeService) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

type reply struct {
	conn  model.ConnID
	event string
	data  any
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []reply
}

func (f *fakeReplier) Send(conn model.ConnID, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{conn: conn, event: event, data: data})
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatch_RoutesIntents(t *testing.T) {
	svc := &fakeService{}
	d := NewDispatcher(svc, &fakeReplier{})
	ctx := context.Background()

	tests := []struct {
		event  string
		data   any
		method string
		args   []any
	}{
		{event: proto.EventCreateRoom, data: proto.CreateRoomRequest{Name: "alice", MaxPlayers: 3}, method: "CreateRoom",
			args: []any{proto.CreateRoomRequest{Name: "alice", MaxPlayers: 3}}},
		{event: proto.EventJoinRoom, data: proto.JoinRoomRequest{RoomID: "r1", Name: "bob", PlayerID: 2}, method: "JoinRoom",
			args: []any{proto.JoinRoomRequest{RoomID: "r1", Name: "bob", PlayerID: 2}}},
		{event: proto.EventPlayerMove, data: proto.MoveRequest{X: 10, Y: 20}, method: "Move", args: []any{10.0, 20.0}},
		{event: proto.EventPlaceBomb, data: proto.PlaceBombRequest{X: 64, Y: 128}, method: "PlaceBomb", args: []any{64.0, 128.0}},
		{event: proto.EventCollectPowerUp, data: proto.CollectPowerUpRequest{PowerUpID: 7}, method: "CollectPowerUp", args: []any{model.PowerUpID(7)}},
		{event: proto.EventLeaveRoom, method: "LeaveRoom"},
		{event: proto.EventDisconnect, method: "Disconnect"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			var data json.RawMessage
			if tt.data != nil {
				data = raw(t, tt.data)
			}
			d.Dispatch(ctx, "c1", tt.event, data)

			got := svc.last()
			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, model.ConnID("c1"), got.conn)
			if tt.args != nil {
				assert.Equal(t, tt.args, got.args)
			}
		})
	}
}

func TestDispatch_Ping(t *testing.T) {
	replier := &fakeReplier{}
	d := NewDispatcher(&fakeService{}, replier)
	d.now = func() time.Time { return time.UnixMilli(5000) }

	d.Dispatch(context.Background(), "c1", proto.EventPing, raw(t, proto.PingRequest{Timestamp: 1234}))

	require.Len(t, replier.replies, 1)
	assert.Equal(t, proto.EventPong, replier.replies[0].event)
	assert.Equal(t, proto.Pong{Timestamp: 1234, ServerTime: 5000}, replier.replies[0].data)
}

func TestDispatch_SurfacedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "not found", err: room.ErrRoomNotFound, code: "ROOM_NOT_FOUND"},
		{name: "full", err: &room.RoomError{Op: "join", RoomID: "r1", Err: room.ErrRoomFull}, code: "ROOM_FULL"},
		{name: "finished", err: room.ErrRoomFinished, code: "ROOM_FINISHED"},
		{name: "unexpected", err: errors.New("disk on fire"), code: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replier := &fakeReplier{}
			d := NewDispatcher(&fakeService{err: tt.err}, replier)

			d.Dispatch(context.Background(), "c1", proto.EventJoinRoom, raw(t, proto.JoinRoomRequest{RoomID: "r1"}))

			require.Len(t, replier.replies, 1)
			assert.Equal(t, proto.EventError, replier.replies[0].event)
			assert.Equal(t, tt.code, replier.replies[0].data.(proto.Error).Code)
			assert.NotEmpty(t, replier.replies[0].data.(proto.Error).Message)
		})
	}
}

func TestDispatch_InvalidIntentsAreSilent(t *testing.T) {
	for _, err := range []error{room.ErrInvalidIntent, room.ErrNotInRoom} {
		replier := &fakeReplier{}
		d := NewDispatcher(&fakeService{err: err}, replier)

		d.Dispatch(context.Background(), "c1", proto.EventPlaceBomb, raw(t, proto.PlaceBombRequest{X: 1, Y: 1}))
		d.Dispatch(context.Background(), "c1", proto.EventPlayerMove, json.RawMessage(`{"x":`))

		assert.Empty(t, replier.replies)
	}
}

func TestDispatch_BadJoinPayload(t *testing.T) {
	replier := &fakeReplier{}
	svc := &fakeService{}
	d := NewDispatcher(svc, replier)

	d.Dispatch(context.Background(), "c1", proto.EventJoinRoom, json.RawMessage(`{"roomId": 12`))
	d.Dispatch(context.Background(), "c1", proto.EventJoinRoom, raw(t, proto.JoinRoomRequest{Name: "no room"}))

	require.Len(t, replier.replies, 2)
	for _, r := range replier.replies {
		assert.Equal(t, "INVALID_PAYLOAD", r.data.(proto.Error).Code)
	}
	assert.Empty(t, svc.calls)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	replier := &fakeReplier{}
	d := NewDispatcher(&fakeService{panic: true}, replier)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "c1", proto.EventPlaceBomb, raw(t, proto.PlaceBombRequest{}))
	})
	assert.Empty(t, replier.replies)
}

func TestDispatch_UnknownEvent(t *testing.T) {
	svc := &fakeService{}
	replier := &fakeReplier{}
	d := NewDispatcher(svc, replier)

	d.Dispatch(context.Background(), "c1", "selfDestruct", nil)

	assert.Empty(t, svc.calls)
	assert.Empty(t, replier.replies)
}

func TestMapErrorToCodeAndMsg(t *testing.T) {
	code, _, surfaced := mapErrorToCodeAndMsg(room.ErrAlreadyInRoom)
	assert.Equal(t, "ALREADY_IN_ROOM", code)
	assert.True(t, surfaced)

	_, _, surfaced = mapErrorToCodeAndMsg(room.ErrInvalidIntent)
	assert.False(t, surfaced)
}
