package game

// Direction RPC 的方向
type Direction int

const (
	// ToServer 任意一端发起，只在权威端执行
	ToServer Direction = iota
	// ToEveryone 只能由权威端发起，在所有端（包括自己）执行
	ToEveryone
)

func (d Direction) String() string {
	if d == ToEveryone {
		return "to-everyone"
	}
	return "to-server"
}

// 逻辑消息集合
const (
	RPCRequestFire       = "RequestFire"
	RPCRequestRegister   = "RequestRegister"
	RPCRequestUnregister = "RequestUnregister"
	RPCRequestRematch    = "RequestRematch"
	RPCRequestExit       = "RequestExit"
	RPCStateChanged      = "BroadcastStateChanged"
	RPCShowMenu          = "BroadcastShowMenu"
	RPCHideMenu          = "BroadcastHideMenu"
)

// Call 一次 RPC 调用。参数按消息集合固定：Well 用于注册类请求，State 用于状态广播
type Call struct {
	Name   string
	Caller PeerID
	Well   EntityID
	State  GameState
}

// Broadcaster 把权威端的广播转发到所有远端
type Broadcaster interface {
	BroadcastRPC(call Call)
}

type rpcChannel struct {
	dir     Direction
	handler func(Call)
}

// RPCRouter 运行在权威端的 RPC 分发器。调用是 fire-and-forget，
// 处理函数必须自行重新校验前置条件，并容忍重复投递
type RPCRouter struct {
	local    PeerID
	channels map[string]rpcChannel
	out      Broadcaster
}

func NewRPCRouter(local PeerID) *RPCRouter {
	return &RPCRouter{local: local, channels: make(map[string]rpcChannel)}
}

func (r *RPCRouter) SetBroadcaster(b Broadcaster) { r.out = b }

func (r *RPCRouter) Handle(name string, dir Direction, h func(Call)) {
	r.channels[name] = rpcChannel{dir: dir, handler: h}
}

// Invoke 投递一次来自某端的调用，返回是否被接受执行
func (r *RPCRouter) Invoke(call Call) bool {
	ch, ok := r.channels[call.Name]
	if !ok {
		logger.Warnw("unknown rpc channel", "rpc", call.Name, "caller", call.Caller)
		return false
	}
	if ch.dir == ToEveryone {
		return r.Broadcast(call)
	}
	if !guard(ServerAuthority(), r.local, "invoke "+call.Name) {
		return false
	}
	ch.handler(call)
	return true
}

// Broadcast 由权威端发起：先在本地执行，再转发给远端
func (r *RPCRouter) Broadcast(call Call) bool {
	ch, ok := r.channels[call.Name]
	if !ok || ch.dir != ToEveryone {
		logger.Warnw("not a broadcast channel", "rpc", call.Name, "caller", call.Caller)
		return false
	}
	if !guard(ServerAuthority(), call.Caller, "broadcast "+call.Name) {
		return false
	}
	ch.handler(call)
	if r.out != nil {
		r.out.BroadcastRPC(call)
	}
	return true
}
