package server

import (
	"fmt"
	"testing"

	"github.com/gorilla/websocket"

	"spacewar/game"
)

type sentFrame struct {
	kind int
	data []byte
}

type fakeConn struct {
	sendCh chan sentFrame
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sendCh: make(chan sentFrame, 1024)}
}

func (f *fakeConn) Enqueue(kind int, b []byte) bool {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.sendCh <- sentFrame{kind: kind, data: cp}:
		return true
	default:
		return false
	}
}

func (f *fakeConn) Close() { f.closed = true }

// drain 取出当前已发送的全部帧，按类型解码信封
func drain(t *testing.T, c *Client, fc *fakeConn) (envs []Envelope, transforms [][]Transform) {
	t.Helper()
	for {
		select {
		case f := <-fc.sendCh:
			if len(f.data) > 0 && f.data[0] == transformTag && f.kind == websocket.BinaryMessage {
				ts, err := DecodeTransforms(f.data)
				if err == nil {
					transforms = append(transforms, ts)
					continue
				}
			}
			env, err := c.Codec.DecodeEnvelope(f.data)
			if err != nil {
				t.Fatalf("decode envelope: %v", err)
			}
			envs = append(envs, env)
		default:
			return envs, transforms
		}
	}
}

func findEnv(envs []Envelope, typ string) []Envelope {
	var out []Envelope
	for _, e := range envs {
		if e.T == typ {
			out = append(out, e)
		}
	}
	return out
}

func testRoom() *Room {
	cfg := DefaultRoomConfig()
	cfg.BroadcastEvery = 1
	return NewRoom("test-room", cfg)
}

func connect(t *testing.T, r *Room, name string, codec Codec) (*Client, *fakeConn) {
	t.Helper()
	fc := newFakeConn()
	c := NewClient(name, codec, fc)
	r.RequestJoin(c)
	r.step()
	return c, fc
}

func send(t *testing.T, r *Room, c *Client, typ string, payload any) {
	t.Helper()
	b, err := c.Codec.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	env, err := c.Codec.DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode %s: %v", typ, err)
	}
	r.OnMessage(c, env)
}

func TestRoomJoinSendsWelcomeAndVars(t *testing.T) {
	r := testRoom()
	c, fc := connect(t, r, "alice", JSONCodec)
	envs, transforms := drain(t, c, fc)

	if len(envs) == 0 || envs[0].T != MsgWelcome {
		t.Fatalf("first message should be welcome, got %v", envs)
	}
	w, err := DecodePayload[WelcomeMessage](c.Codec, envs[0])
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if w.Peer != 0 || !w.Seated || w.Session == "" || w.Room != "test-room" {
		t.Fatalf("unexpected welcome: %+v", w)
	}

	vars := findEnv(envs, MsgVars)
	if len(vars) == 0 {
		t.Fatalf("no vars message")
	}
	full, err := DecodePayload[VarsMessage](c.Codec, vars[0])
	if err != nil {
		t.Fatalf("decode vars: %v", err)
	}
	if !full.Full {
		t.Fatalf("first vars message should be a full snapshot")
	}
	name := fmt.Sprintf("player.%d.name", c.Player().ID)
	if full.Vars[name] != "alice" {
		t.Fatalf("expected %s=alice in %v", name, full.Vars)
	}

	spawns := findEnv(envs, MsgSpawn)
	if len(spawns) != 2 {
		t.Fatalf("expected well and player spawns, got %d", len(spawns))
	}
	if len(transforms) == 0 || len(transforms[0]) != 2 {
		t.Fatalf("expected a transform frame with 2 entities, got %v", transforms)
	}
}

func TestRoomTwoClientsStartGame(t *testing.T) {
	r := testRoom()
	c1, fc1 := connect(t, r, "alice", JSONCodec)
	drain(t, c1, fc1)
	c2, fc2 := connect(t, r, "bob", MsgpackCodec)

	if r.session.State() != game.GameStarted {
		t.Fatalf("expected GameStarted, got %s", r.session.State())
	}
	if c2.Peer() != 1 || !c2.Seated() {
		t.Fatalf("second client should take seat 1: peer=%d", c2.Peer())
	}

	envs, _ := drain(t, c1, fc1)
	var sawStarted bool
	for _, e := range findEnv(envs, MsgRPC) {
		m, err := DecodePayload[RPCBroadcast](c1.Codec, e)
		if err != nil {
			t.Fatalf("decode rpc: %v", err)
		}
		if m.Name == game.RPCStateChanged && m.State == "GameStarted" {
			sawStarted = true
		}
	}
	if !sawStarted {
		t.Fatalf("first client did not see GameStarted")
	}
	if len(findEnv(envs, MsgSpawn)) != 1 {
		t.Fatalf("first client should see the second player spawn")
	}

	// msgpack 客户端收到二进制帧并能解码欢迎消息
	envs2, _ := drain(t, c2, fc2)
	if len(envs2) == 0 || envs2[0].T != MsgWelcome {
		t.Fatalf("msgpack client did not get welcome")
	}
}

func TestRoomSpectatorAndLeave(t *testing.T) {
	r := testRoom()
	c1, _ := connect(t, r, "alice", JSONCodec)
	connect(t, r, "bob", JSONCodec)
	c3, fc3 := connect(t, r, "carol", JSONCodec)

	if c3.Seated() || c3.Peer() < spectatorBase {
		t.Fatalf("third client should spectate, peer=%d", c3.Peer())
	}
	envs, _ := drain(t, c3, fc3)
	w, _ := DecodePayload[WelcomeMessage](c3.Codec, envs[0])
	if w.Seated {
		t.Fatalf("spectator welcome should not be seated")
	}

	send(t, r, c3, MsgRPC, RPCMessage{Name: game.RPCRequestFire})
	r.step()
	if r.metrics.RPCRejected != 1 {
		t.Fatalf("spectator rpc should be rejected")
	}

	fc1 := c1.Conn.(*fakeConn)
	r.RequestLeave(c1)
	r.step()
	if !fc1.closed {
		t.Fatalf("leaving client connection not closed")
	}
	if !c3.Seated() {
		t.Fatalf("spectator should take the seat alice left")
	}
	// 再次离开是 no-op
	r.RequestLeave(c1)
	r.step()
	if got := r.Info().Clients; got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
}

func TestRoomInputLimits(t *testing.T) {
	r := testRoom()
	cfg := r.Config()
	c, _ := connect(t, r, "alice", JSONCodec)

	for i := 0; i < cfg.MaxInputsPerTick+3; i++ {
		send(t, r, c, MsgInput, InputMessage{Rotate: 1, Seq: int64(i + 1)})
	}
	r.step()
	if r.metrics.RateLimited != 3 {
		t.Fatalf("expected 3 rate limited, got %d", r.metrics.RateLimited)
	}
	if r.metrics.InputsAccepted != int64(cfg.MaxInputsPerTick) {
		t.Fatalf("expected %d accepted, got %d", cfg.MaxInputsPerTick, r.metrics.InputsAccepted)
	}

	send(t, r, c, MsgInput, InputMessage{Rotate: 1, Seq: 2})
	r.step()
	if r.metrics.OldSeqIgnored != 1 {
		t.Fatalf("old sequence should be ignored")
	}
}

func TestRoomOwnerWriteOverWire(t *testing.T) {
	r := testRoom()
	c1, _ := connect(t, r, "alice", JSONCodec)
	c2, _ := connect(t, r, "bob", MsgpackCodec)
	thrust := fmt.Sprintf("fighter.%d.thrusting", c2.Player().ID)

	raw1, _ := rawValue(c1.Codec, true)
	send(t, r, c1, MsgSet, SetMessage{Name: thrust, Value: raw1})
	r.step()
	if c2.Player().Fighter().Thrusting.Get() {
		t.Fatalf("non-owner write applied")
	}
	if r.metrics.VarRejected != 1 {
		t.Fatalf("expected rejected write to be counted")
	}

	raw2, _ := rawValue(c2.Codec, true)
	send(t, r, c2, MsgSet, SetMessage{Name: thrust, Value: raw2})
	r.step()
	if !c2.Player().Fighter().Thrusting.Get() {
		t.Fatalf("owner write not applied")
	}
}

func TestRoomHelloRenames(t *testing.T) {
	r := testRoom()
	c, _ := connect(t, r, "", JSONCodec)
	if got := c.Player().Name.Get(); got != "Player 1" {
		t.Fatalf("expected fallback name, got %q", got)
	}
	send(t, r, c, MsgHello, HelloMessage{Name: "alice"})
	r.step()
	if got := c.Player().Name.Get(); got != "alice" {
		t.Fatalf("expected rename, got %q", got)
	}
}

func TestRoomMalformedPayload(t *testing.T) {
	r := testRoom()
	c, fc := connect(t, r, "alice", JSONCodec)
	drain(t, c, fc)

	r.OnMessage(c, Envelope{T: MsgInput, P: []byte(`{"rotate":"left"}`)})
	r.OnMessage(c, Envelope{T: "teleport", P: []byte(`{}`)})
	r.step()
	if r.metrics.Malformed != 2 {
		t.Fatalf("expected 2 malformed, got %d", r.metrics.Malformed)
	}
	envs, _ := drain(t, c, fc)
	if len(findEnv(envs, MsgError)) != 1 {
		t.Fatalf("expected an error reply for the bad payload")
	}
}

func TestRoomExitStartsNewSession(t *testing.T) {
	r := testRoom()
	c1, fc1 := connect(t, r, "alice", JSONCodec)
	connect(t, r, "bob", JSONCodec)
	old := r.session.ID
	drain(t, c1, fc1)

	send(t, r, c1, MsgRPC, RPCMessage{Name: game.RPCRequestExit})
	r.step()
	if r.session.ID == old {
		t.Fatalf("session not replaced after exit")
	}
	if r.session.State() != game.GameStarted {
		t.Fatalf("seated players should rejoin the new session, state %s", r.session.State())
	}
	if c1.Player() == nil || c1.Peer() != 0 {
		t.Fatalf("client lost its seat")
	}

	envs, _ := drain(t, c1, fc1)
	var sawMenu bool
	for _, e := range findEnv(envs, MsgRPC) {
		m, _ := DecodePayload[RPCBroadcast](c1.Codec, e)
		if m.Name == game.RPCShowMenu {
			sawMenu = true
		}
	}
	if !sawMenu {
		t.Fatalf("ShowMenu not broadcast on exit")
	}
	welcomes := findEnv(envs, MsgWelcome)
	if len(welcomes) != 1 {
		t.Fatalf("expected a new welcome, got %d", len(welcomes))
	}
	w, _ := DecodePayload[WelcomeMessage](c1.Codec, welcomes[0])
	if w.Session != r.session.ID {
		t.Fatalf("welcome carries stale session id")
	}
}

func TestRoomUpdateConfig(t *testing.T) {
	r := testRoom()
	if _, err := r.UpdateConfig(func(c *RoomConfig) { c.TickRate = 0 }); err == nil {
		t.Fatalf("invalid config accepted")
	}
	if r.Config().TickRate != DefaultRoomConfig().TickRate {
		t.Fatalf("rejected update changed config")
	}
	cfg, err := r.UpdateConfig(func(c *RoomConfig) { c.SimulateDropProb = 1 })
	if err != nil || cfg.SimulateDropProb != 1 {
		t.Fatalf("update failed: %v", err)
	}

	c, _ := connect(t, r, "alice", JSONCodec)
	send(t, r, c, MsgInput, InputMessage{Rotate: 1})
	r.step()
	if r.metrics.DropsSimulated != 1 || r.metrics.InputsAccepted != 0 {
		t.Fatalf("input should be dropped, metrics %+v", r.metrics.Snapshot())
	}
}

func TestRoomTickerStop(t *testing.T) {
	m := NewRoomManager(DefaultRoomConfig())
	r := m.GetOrCreateRoom("a")
	if again := m.GetOrCreateRoom("a"); again != r {
		t.Fatalf("expected the same room")
	}
	if _, ok := m.GetRoom("b"); ok {
		t.Fatalf("GetRoom should not create")
	}
	m.Shutdown()
	// 停止后的离开请求不会阻塞
	r.RequestLeave(NewClient("x", nil, newFakeConn()))
}

func TestRoomLeaveSeatsWaitingSpectator(t *testing.T) {
	r := testRoom()
	c1, _ := connect(t, r, "alice", JSONCodec)
	c2, fc2 := connect(t, r, "bob", JSONCodec)
	c3, fc3 := connect(t, r, "carol", JSONCodec)
	drain(t, c2, fc2)
	drain(t, c3, fc3)

	r.RequestLeave(c1)
	r.step()

	if !c3.Seated() || c3.Peer() != 0 || c3.Player() == nil {
		t.Fatalf("spectator should take the free seat, peer=%d seated=%v", c3.Peer(), c3.Seated())
	}
	if r.session.State() != game.GameStarted {
		t.Fatalf("two connected clients should start the game, got %s", r.session.State())
	}
	if n := len(r.session.Players()); n != 2 {
		t.Fatalf("expected 2 players, got %d", n)
	}

	envs, _ := drain(t, c3, fc3)
	welcomes := findEnv(envs, MsgWelcome)
	if len(welcomes) != 1 {
		t.Fatalf("seated spectator should get a new welcome, got %d", len(welcomes))
	}
	w, _ := DecodePayload[WelcomeMessage](c3.Codec, welcomes[0])
	if !w.Seated || w.Peer != 0 {
		t.Fatalf("unexpected welcome after taking a seat: %+v", w)
	}

	// 其他连接看到新玩家生成
	envs, _ = drain(t, c2, fc2)
	if len(findEnv(envs, MsgSpawn)) != 1 || len(findEnv(envs, MsgDespawn)) != 1 {
		t.Fatalf("bob should see one despawn and one spawn")
	}
}

func TestRoomJoinDuringExitGetsSeat(t *testing.T) {
	r := testRoom()
	c1, _ := connect(t, r, "alice", JSONCodec)

	// 退出与新连接在同一次 drain 中处理
	send(t, r, c1, MsgRPC, RPCMessage{Name: game.RPCRequestExit})
	fc2 := newFakeConn()
	c2 := NewClient("bob", JSONCodec, fc2)
	r.RequestJoin(c2)
	r.step()

	if !c2.Seated() || c2.Peer() != 1 {
		t.Fatalf("client joining during exit should be seated in the new session, peer=%d", c2.Peer())
	}
	if r.session.State() != game.GameStarted {
		t.Fatalf("expected GameStarted, got %s", r.session.State())
	}
	envs, _ := drain(t, c2, fc2)
	welcomes := findEnv(envs, MsgWelcome)
	if len(welcomes) != 1 {
		t.Fatalf("expected exactly one welcome, got %d", len(welcomes))
	}
	w, _ := DecodePayload[WelcomeMessage](c2.Codec, welcomes[0])
	if w.Session != r.session.ID || !w.Seated {
		t.Fatalf("welcome should describe the new session: %+v", w)
	}
}

func TestRoomNewSessionSeatsSpectators(t *testing.T) {
	r := testRoom()
	c1, _ := connect(t, r, "alice", JSONCodec)
	connect(t, r, "bob", JSONCodec)
	c3, _ := connect(t, r, "carol", JSONCodec)
	spectator := c3.Peer()

	// bob 在退出的同一 tick 离开，新会话里 carol 补上空位
	send(t, r, c1, MsgRPC, RPCMessage{Name: game.RPCRequestExit})
	r.RequestLeave(r.clients[1])
	r.step()

	if !c3.Seated() || c3.Peer() == spectator {
		t.Fatalf("spectator should be seated in the new session, peer=%d", c3.Peer())
	}
	if c1.Peer() != 0 || !c1.Seated() {
		t.Fatalf("alice should keep seat 0, peer=%d", c1.Peer())
	}
	if r.session.State() != game.GameStarted {
		t.Fatalf("expected GameStarted, got %s", r.session.State())
	}
}
