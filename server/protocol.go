package server

import "spacewar/game"

// 服务端 → 客户端消息类型
const (
	MsgWelcome = "welcome"
	MsgVars    = "vars"
	MsgSpawn   = "spawn"
	MsgDespawn = "despawn"
	MsgError   = "error"
)

// WelcomeMessage 连接接入或会话重建后发送
type WelcomeMessage struct {
	Room    string      `json:"room" msgpack:"room"`
	Session string      `json:"session" msgpack:"session"`
	Peer    game.PeerID `json:"peer" msgpack:"peer"`
	Seated  bool        `json:"seated" msgpack:"seated"` // false 表示观战
	Codec   string      `json:"codec" msgpack:"codec"`
}

// VarsMessage 复制变量：新连接收到全量，之后每个广播周期只收到变化的部分
type VarsMessage struct {
	Full bool           `json:"full,omitempty" msgpack:"full,omitempty"`
	Vars map[string]any `json:"vars" msgpack:"vars"`
}

// RPCBroadcast 权威端广播的 RPC（状态变化、显示/隐藏菜单）
type RPCBroadcast struct {
	Name  string `json:"name" msgpack:"name"`
	State string `json:"state,omitempty" msgpack:"state,omitempty"`
}

// SpawnMessage 实体生成，远端据此实例化对应表现
type SpawnMessage struct {
	ID    game.EntityID `json:"id" msgpack:"id"`
	Kind  string        `json:"kind" msgpack:"kind"`
	Owner game.PeerID   `json:"owner" msgpack:"owner"`
	Layer string        `json:"layer" msgpack:"layer"`
	X     float64       `json:"x" msgpack:"x"`
	Y     float64       `json:"y" msgpack:"y"`
	Rot   float64       `json:"rot" msgpack:"rot"`
}

type DespawnMessage struct {
	ID game.EntityID `json:"id" msgpack:"id"`
}

type ErrorMessage struct {
	Error string `json:"error" msgpack:"error"`
}

func spawnMessage(b *game.Body) SpawnMessage {
	return SpawnMessage{
		ID:    b.ID,
		Kind:  b.Kind.String(),
		Owner: b.Owner,
		Layer: b.Layer.String(),
		X:     b.Pos.X,
		Y:     b.Pos.Y,
		Rot:   b.Rot,
	}
}

func rpcBroadcast(call game.Call) RPCBroadcast {
	msg := RPCBroadcast{Name: call.Name}
	if call.Name == game.RPCStateChanged {
		msg.State = call.State.String()
	}
	return msg
}
