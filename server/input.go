package server

import "spacewar/game"

// 客户端 → 服务端消息类型
const (
	MsgHello = "hello"
	MsgRPC   = "rpc"
	MsgInput = "input"
	MsgSet   = "set"
)

// HelloMessage 设置或修改玩家名
// 示例：{"t":"hello","p":{"name":"alice"}}
type HelloMessage struct {
	Name string `json:"name" msgpack:"name"`
}

// RPCMessage 客户端发起的 RPC 意图（RequestFire、RequestRegister 等）
// 示例：{"t":"rpc","p":{"name":"RequestRegister","well":1}}
type RPCMessage struct {
	Name string        `json:"name" msgpack:"name"`
	Well game.EntityID `json:"well,omitempty" msgpack:"well,omitempty"`
}

// InputMessage 操控意图，由服务端在 Tick 中解释
// 示例：{"t":"input","p":{"rotate":-1,"thrust":true,"seq":42}}
type InputMessage struct {
	Rotate float64 `json:"rotate" msgpack:"rotate"`
	Thrust bool    `json:"thrust" msgpack:"thrust"`
	Seq    int64   `json:"seq,omitempty" msgpack:"seq,omitempty"` // 客户端本地序列号，用于去重
}

// SetMessage 对拥有者可写的复制变量发起写入
// 示例：{"t":"set","p":{"name":"fighter.3.thrusting","value":true}}
type SetMessage struct {
	Name  string   `json:"name" msgpack:"name"`
	Value RawValue `json:"value" msgpack:"value"`
}
