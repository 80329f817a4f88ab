package server

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"spacewar/game"
)

// 观战连接的 PeerID 从这里开始分配，不与玩家席位冲突
const spectatorBase game.PeerID = 1000

type inboundKind int

const (
	inJoin inboundKind = iota
	inLeave
	inMessage
)

type inbound struct {
	kind   inboundKind
	client *Client
	env    Envelope
}

// RoomInfo 房间概况，供 /admin/rooms 读取
type RoomInfo struct {
	ID            string   `json:"id"`
	Session       string   `json:"session"`
	State         string   `json:"state"`
	Players       []string `json:"players"`
	Clients       int      `json:"clients"`
	Scores        []int    `json:"scores"`
	TimeRemaining float64  `json:"timeRemaining"`
	Tick          int64    `json:"tick"`
}

// Room 房间：持有一个权威会话，单线程 Tick 推进。
// 网络读协程只向 inbox 投递消息，其余字段只在 tick 协程访问
type Room struct {
	ID string

	mu   sync.RWMutex
	cfg  RoomConfig
	info RoomInfo

	metrics *RoomMetrics
	tickSeq atomic.Int64

	inbox chan inbound
	quit  chan struct{}
	done  chan struct{}

	tickerStarted bool
	stopOnce      sync.Once

	session *game.Session
	subs    []game.Subscription
	clients []*Client
	seats   []*Client
	names   *NameFilter
	rng     *rand.Rand
	pending []event
	// 下一个观战 PeerID
	nextSpectator game.PeerID
}

type event struct {
	t       string
	payload any
}

// NewRoom 创建房间与第一个会话；调用 StartTicker 之前不会推进
func NewRoom(id string, cfg RoomConfig) *Room {
	r := &Room{
		ID:            id,
		cfg:           cfg,
		metrics:       &RoomMetrics{},
		inbox:         make(chan inbound, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		names:         NewNameFilter(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		nextSpectator: spectatorBase,
	}
	r.newSession()
	r.updateInfo()
	return r
}

// Config 当前配置的副本
func (r *Room) Config() RoomConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// UpdateConfig 校验后替换配置，tick 协程在下一个 tick 读取
func (r *Room) UpdateConfig(fn func(*RoomConfig)) (RoomConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return r.cfg, err
	}
	r.cfg = next
	return next, nil
}

func (r *Room) Info() RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }
func (r *Room) Tick() int64           { return r.tickSeq.Load() }

// RequestJoin 请求在 Tick 线程中接入连接
func (r *Room) RequestJoin(c *Client) {
	r.enqueueControl(inbound{kind: inJoin, client: c})
}

// RequestLeave 请求在 Tick 线程中移除连接，避免并发改动房间状态
func (r *Room) RequestLeave(c *Client) {
	r.enqueueControl(inbound{kind: inLeave, client: c})
}

// 接入/离开必须生效，采用阻塞式写入；房间已停止时放弃
func (r *Room) enqueueControl(in inbound) {
	select {
	case r.inbox <- in:
	case <-r.quit:
	}
}

// OnMessage 入站消息（不立即生效），等下一次 Tick 处理
func (r *Room) OnMessage(c *Client, env Envelope) {
	// 不阻塞：拥塞时丢弃，保证 Tick 准时
	select {
	case r.inbox <- inbound{kind: inMessage, client: c, env: env}:
	default:
		r.metrics.IncChanFullDiscarded()
	}
}

// BeginTick 重置帧内状态
func (r *Room) BeginTick() {
	for _, c := range r.clients {
		c.inputs = 0
	}
}

// ProcessInputs 处理当前已到达的全部消息（非阻塞 drain）
func (r *Room) ProcessInputs(cfg RoomConfig) {
	for {
		select {
		case in := <-r.inbox:
			switch in.kind {
			case inJoin:
				r.join(in.client)
			case inLeave:
				r.leave(in.client)
			case inMessage:
				r.handleMessage(cfg, in.client, in.env)
			}
		default:
			return
		}
	}
}

// UpdateWorld 推进会话一个固定步长；会话结束时换成新会话
func (r *Room) UpdateWorld(dt float64) {
	r.session.Tick(dt)
	if r.session.Ended() {
		r.flushEvents()
		Log.Infow("session ended, starting a new one", "room", r.ID, "session", r.session.ID)
		r.newSession()
		r.reseat()
	}
}

// BroadcastDelta 广播变化的复制变量与全部实体变换
func (r *Room) BroadcastDelta() {
	if vars := r.session.Replicas().CollectDirty(); vars != nil {
		r.fanout(MsgVars, VarsMessage{Vars: vars})
	}
	frame, err := EncodeTransforms(transformsOf(r.session.World().Bodies()))
	if err != nil {
		Log.Errorw("encode transforms failed", "room", r.ID, "err", err)
		return
	}
	for _, c := range r.clients {
		if !c.Conn.Enqueue(websocket.BinaryMessage, frame) {
			r.metrics.IncSendDropped()
		}
	}
}

// BroadcastRPC 把会话的广播 RPC 转发给所有连接
func (r *Room) BroadcastRPC(call game.Call) {
	r.fanout(MsgRPC, rpcBroadcast(call))
}

// step 一个完整的 tick：处理输入 → 更新世界 → 广播结果
func (r *Room) step() {
	start := time.Now()
	cfg := r.Config()
	r.BeginTick()
	r.ProcessInputs(cfg)
	r.UpdateWorld(cfg.Step())
	seq := r.tickSeq.Add(1)
	r.flushEvents()
	if seq%int64(cfg.BroadcastEvery) == 0 {
		r.BroadcastDelta()
	}
	r.updateInfo()
	r.metrics.AddTick(time.Since(start).Nanoseconds())
}

func (r *Room) newSession() {
	for _, sub := range r.subs {
		sub.Cancel()
	}
	s := game.NewSession(r.Config().SessionConfig())
	s.SetBroadcaster(r)
	w := s.World()
	r.subs = []game.Subscription{
		w.OnSpawn(nil, func(b *game.Body) {
			r.pending = append(r.pending, event{MsgSpawn, spawnMessage(b)})
		}),
		w.OnDespawn(nil, func(b *game.Body) {
			r.pending = append(r.pending, event{MsgDespawn, DespawnMessage{ID: b.ID}})
		}),
	}
	r.session = s
	r.seats = make([]*Client, s.Config().RequiredPlayers)
	s.Start()
	Log.Infow("session created", "room", r.ID, "session", s.ID)
}

// reseat 新会话先让原来占座的连接入座，空余席位再按连接顺序分给等待中的连接，
// 然后向所有连接发送全量状态
func (r *Room) reseat() {
	order := make([]*Client, 0, len(r.clients))
	var waiting []*Client
	for _, c := range r.clients {
		if c.seated {
			order = append(order, c)
		} else {
			waiting = append(waiting, c)
		}
		c.seated = false
		c.player = nil
	}
	for _, c := range append(order, waiting...) {
		if !r.seat(c) {
			r.spectate(c)
		}
	}
	// 全量状态已包含这些实体
	r.pending = nil
	for _, c := range r.clients {
		r.sendSnapshot(c)
	}
}

func (r *Room) join(c *Client) {
	for _, existing := range r.clients {
		if existing == c {
			return
		}
	}
	if r.session.Ended() {
		// 本 tick 内会话已结束：先以观战身份等待，新会话建立后在 reseat 中入座并收到全量状态
		r.spectate(c)
		r.clients = append(r.clients, c)
		Log.Infow("client held until the next session", "room", r.ID, "client", c.ID)
		return
	}
	if !r.seat(c) {
		r.spectate(c)
	}
	// 先把入座产生的事件发给已有连接，新连接直接收全量
	r.flushEvents()
	r.clients = append(r.clients, c)
	r.sendSnapshot(c)
	Log.Infow("client joined room", "room", r.ID, "client", c.ID, "peer", c.peer, "seated", c.seated, "clients", len(r.clients))
}

// spectate 未占座的连接分配观战 PeerID，已是观战者的保留原 id
func (r *Room) spectate(c *Client) {
	if c.peer >= spectatorBase {
		return
	}
	c.peer = r.nextSpectator
	r.nextSpectator++
}

// promote 空出的席位按连接顺序分给观战者，入座的连接重新收到全量状态
func (r *Room) promote() {
	var seated []*Client
	for _, c := range r.clients {
		if c.seated {
			continue
		}
		if !r.seat(c) {
			break
		}
		seated = append(seated, c)
	}
	if len(seated) == 0 {
		return
	}
	r.flushEvents()
	for _, c := range seated {
		r.sendSnapshot(c)
		Log.Infow("spectator took a seat", "room", r.ID, "client", c.ID, "peer", c.peer)
	}
}

// seat 占用最小的空席位并加入会话
func (r *Room) seat(c *Client) bool {
	idx := -1
	for i, s := range r.seats {
		if s == nil || s == c {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	peer := game.PeerID(idx)
	p, ok := r.session.PlayerJoined(peer, r.names.Clean(c.Name, idx))
	if !ok {
		return false
	}
	r.seats[idx] = c
	c.peer = peer
	c.seated = true
	c.player = p
	return true
}

func (r *Room) leave(c *Client) {
	idx := -1
	for i, existing := range r.clients {
		if existing == c {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	r.clients = append(r.clients[:idx], r.clients[idx+1:]...)
	wasSeated := c.seated
	if c.seated {
		r.session.PlayerLeft(c.peer)
		r.seats[c.peer] = nil
		c.seated = false
		c.player = nil
	}
	c.Conn.Close()
	Log.Infow("client left room", "room", r.ID, "client", c.ID, "peer", c.peer, "clients", len(r.clients))
	if wasSeated && !r.session.Ended() {
		r.promote()
	}
}

func (r *Room) sendSnapshot(c *Client) {
	c.send(MsgWelcome, WelcomeMessage{
		Room:    r.ID,
		Session: r.session.ID,
		Peer:    c.peer,
		Seated:  c.seated,
		Codec:   c.Codec.Name(),
	})
	for _, b := range r.session.World().Bodies() {
		c.send(MsgSpawn, spawnMessage(b))
	}
	c.send(MsgVars, VarsMessage{Full: true, Vars: r.session.Replicas().Full()})
}

func (r *Room) handleMessage(cfg RoomConfig, c *Client, env Envelope) {
	switch env.T {
	case MsgHello:
		m, err := DecodePayload[HelloMessage](c.Codec, env)
		if err != nil {
			r.reject(c, err)
			return
		}
		c.Name = m.Name
		if c.player != nil {
			c.player.Name.Set(game.ServerPeer, r.names.Clean(m.Name, int(c.peer)))
		}
	case MsgRPC:
		m, err := DecodePayload[RPCMessage](c.Codec, env)
		if err != nil {
			r.reject(c, err)
			return
		}
		if !c.seated {
			r.metrics.IncRPCRejected()
			return
		}
		call := game.Call{Name: m.Name, Caller: c.peer, Well: m.Well}
		if !r.session.Invoke(call) {
			r.metrics.IncRPCRejected()
		}
		// 模拟至少一次投递：同一请求重复执行，处理函数需自行幂等
		if cfg.SimulateDupProb > 0 && r.rng.Float64() < cfg.SimulateDupProb {
			r.metrics.IncDupsSimulated()
			r.session.Invoke(call)
		}
	case MsgInput:
		m, err := DecodePayload[InputMessage](c.Codec, env)
		if err != nil {
			r.reject(c, err)
			return
		}
		if m.Seq != 0 && m.Seq <= c.lastSeq {
			r.metrics.IncOldSeqIgnored()
			return
		}
		if c.inputs >= cfg.MaxInputsPerTick {
			r.metrics.IncRateLimited()
			return
		}
		if cfg.SimulateDropProb > 0 && r.rng.Float64() < cfg.SimulateDropProb {
			r.metrics.IncDropsSimulated()
			return
		}
		c.inputs++
		if m.Seq != 0 {
			c.lastSeq = m.Seq
		}
		if r.session.SetInput(c.peer, m.Rotate, m.Thrust) {
			r.metrics.IncAccepted()
		}
	case MsgSet:
		m, err := DecodePayload[SetMessage](c.Codec, env)
		if err != nil {
			r.reject(c, err)
			return
		}
		ok := r.session.WriteVar(c.peer, m.Name, func(out any) error {
			return c.Codec.Unmarshal(m.Value, out)
		})
		if !ok {
			r.metrics.IncVarRejected()
		}
	default:
		Log.Debugw("unknown message type", "room", r.ID, "client", c.ID, "type", env.T)
		r.metrics.IncMalformed()
	}
}

// reject 负载无法解码：记录并告知客户端，连接保持
func (r *Room) reject(c *Client, err error) {
	Log.Debugw("bad payload dropped", "room", r.ID, "client", c.ID, "err", err)
	r.metrics.IncMalformed()
	c.send(MsgError, ErrorMessage{Error: err.Error()})
}

func (r *Room) flushEvents() {
	for _, e := range r.pending {
		r.fanout(e.t, e.payload)
	}
	r.pending = r.pending[:0]
}

// fanout 每种编码只编码一次
func (r *Room) fanout(t string, payload any) {
	var encoded map[string][]byte
	for _, c := range r.clients {
		name := c.Codec.Name()
		b, ok := encoded[name]
		if !ok {
			var err error
			b, err = c.Codec.Encode(t, payload)
			if err != nil {
				Log.Errorw("encode broadcast failed", "room", r.ID, "type", t, "codec", name, "err", err)
				continue
			}
			if encoded == nil {
				encoded = make(map[string][]byte, 2)
			}
			encoded[name] = b
		}
		if !c.Conn.Enqueue(c.Codec.FrameType(), b) {
			r.metrics.IncSendDropped()
		}
	}
}

func (r *Room) updateInfo() {
	s := r.session
	info := RoomInfo{
		ID:            r.ID,
		Session:       s.ID,
		State:         s.State().String(),
		Clients:       len(r.clients),
		Scores:        s.Scores.Values(),
		TimeRemaining: s.TimeRemaining.Get(),
		Tick:          r.tickSeq.Load(),
	}
	for _, p := range s.Players() {
		info.Players = append(info.Players, p.Name.Get())
	}
	r.mu.Lock()
	r.info = info
	r.mu.Unlock()
}

// closeAll 房间停止后关闭全部连接
func (r *Room) closeAll() {
	for _, c := range r.clients {
		c.Conn.Close()
	}
	r.clients = nil
}
