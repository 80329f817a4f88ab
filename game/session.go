package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// GameState 会话状态
type GameState int

const (
	WaitingForPlayers GameState = iota
	GameStarted
	GameRestarted
	PlayerTurnStart
	PlayerTurnEnd
	GameOver
)

var stateNames = [...]string{"WaitingForPlayers", "GameStarted", "GameRestarted", "PlayerTurnStart", "PlayerTurnEnd", "GameOver"}

func (s GameState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// ParseGameState 解析状态名，未知名字返回 false
func ParseGameState(name string) (GameState, bool) {
	for i, n := range stateNames {
		if n == name {
			return GameState(i), true
		}
	}
	return 0, false
}

// GameOverPolicy 回合结束时判断对局是否结束
type GameOverPolicy func(s *Session) bool

// StateIsGameOver 默认策略：只有已处于 GameOver 才算结束，对局靠时间耗尽终止
func StateIsGameOver(s *Session) bool { return s.State() == GameOver }

// ScoreLimit 任一玩家得分达到 n 即结束
func ScoreLimit(n int) GameOverPolicy {
	return func(s *Session) bool {
		if StateIsGameOver(s) {
			return true
		}
		for _, v := range s.Scores.Values() {
			if v >= n {
				return true
			}
		}
		return false
	}
}

// Config 会话参数
type Config struct {
	ID              string
	RequiredPlayers int
	GameTimeLimit   float64 // 秒
	TurnStartDelay  float64 // 回合开始倒计时
	StateDelay      float64 // 倒计时结束 / 最终回合结束后切换状态前的短暂延迟
	Bounds          Vec2
	Wells           []WellConfig
	Player          PlayerConfig
	GameOver        GameOverPolicy
	Rand            *rand.Rand
}

func DefaultConfig() Config {
	well := DefaultWellConfig()
	return Config{
		RequiredPlayers: 2,
		GameTimeLimit:   120,
		TurnStartDelay:  3,
		StateDelay:      0.25,
		Bounds:          Vec2{X: 16, Y: 9},
		Wells:           []WellConfig{well},
		Player:          DefaultPlayerConfig(),
		GameOver:        StateIsGameOver,
	}
}

// Session 一场对局的权威状态机：回合、计分、时间与对局结束判定
type Session struct {
	ID string

	cfg      Config
	local    PeerID
	rng      *rand.Rand
	world    *World
	rpc      *RPCRouter
	sched    *Scheduler
	replicas *ReplicaSet

	state         *NetVar[GameState]
	Scores        *NetList[int]
	TimeRemaining *NetVar[float64]
	IsPlaying     *NetVar[bool]

	players      []*Player
	turnStart    *CountdownTimer
	timerSub     Subscription
	pending      Handle
	stateChanged listeners[GameState]
	menuVisible  bool
	ended        bool
}

// NewSession 创建会话；本进程是权威端
func NewSession(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.RequiredPlayers <= 0 {
		cfg.RequiredPlayers = 2
	}
	if cfg.GameOver == nil {
		cfg.GameOver = StateIsGameOver
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Session{
		ID:          cfg.ID,
		cfg:         cfg,
		local:       ServerPeer,
		rng:         rng,
		world:       NewWorld(ServerPeer, cfg.Bounds),
		rpc:         NewRPCRouter(ServerPeer),
		sched:       NewScheduler(),
		replicas:    NewReplicaSet(),
		turnStart:   NewCountdownTimer(cfg.TurnStartDelay),
		menuVisible: true,
	}
	auth := ServerAuthority()
	s.state = NewNetVar("session.state", auth, WaitingForPlayers)
	s.Scores = NewNetList[int]("session.scores", auth)
	s.TimeRemaining = NewNetVar("session.time_remaining", auth, cfg.GameTimeLimit)
	s.IsPlaying = NewNetVar("session.is_playing", auth, false)
	s.replicas.Add(s.state)
	s.replicas.Add(s.Scores)
	s.replicas.Add(s.TimeRemaining)
	s.replicas.Add(s.IsPlaying)

	s.timerSub = s.turnStart.OnStop(nil, s.onTurnStartTimerComplete)
	s.registerRPCs()
	for _, wc := range cfg.Wells {
		s.world.AddWell(wc)
	}
	return s
}

func (s *Session) registerRPCs() {
	s.rpc.Handle(RPCRequestFire, ToServer, s.handleFire)
	s.rpc.Handle(RPCRequestRegister, ToServer, s.handleRegister)
	s.rpc.Handle(RPCRequestUnregister, ToServer, s.handleUnregister)
	s.rpc.Handle(RPCRequestRematch, ToServer, s.handleRematch)
	s.rpc.Handle(RPCRequestExit, ToServer, s.handleExit)
	s.rpc.Handle(RPCStateChanged, ToEveryone, func(c Call) { s.stateChanged.emit(c.State) })
	s.rpc.Handle(RPCShowMenu, ToEveryone, func(Call) { s.menuVisible = true })
	s.rpc.Handle(RPCHideMenu, ToEveryone, func(Call) { s.menuVisible = false })
}

func (s *Session) Config() Config        { return s.cfg }
func (s *Session) State() GameState      { return s.state.Get() }
func (s *Session) World() *World         { return s.world }
func (s *Session) RPC() *RPCRouter       { return s.rpc }
func (s *Session) Replicas() *ReplicaSet { return s.replicas }
func (s *Session) Scheduler() *Scheduler { return s.sched }
func (s *Session) Now() float64          { return s.sched.Now() }
func (s *Session) MenuVisible() bool     { return s.menuVisible }
func (s *Session) Ended() bool           { return s.ended }

// TurnTimerState 回合开始倒计时的状态与剩余时间；计时器只由会话自己启动和停止
func (s *Session) TurnTimerState() (TimerState, float64) {
	return s.turnStart.State(), s.turnStart.Remaining()
}

// SetBroadcaster 注入把广播 RPC 发往远端的传输层
func (s *Session) SetBroadcaster(b Broadcaster) { s.rpc.SetBroadcaster(b) }

// Start 会话初始化完成：通知所有端隐藏主菜单
func (s *Session) Start() {
	s.rpc.Broadcast(Call{Name: RPCHideMenu, Caller: s.local})
	logger.Infow("session started", "session", s.ID, "required_players", s.cfg.RequiredPlayers)
}

// OnStateChanged 订阅状态变化通知（这是状态机与表现层之间唯一的耦合）
func (s *Session) OnStateChanged(owner Lifetime, fn func(GameState)) Subscription {
	return s.stateChanged.add(owner, fn)
}

// Players 按加入顺序
func (s *Session) Players() []*Player { return append([]*Player(nil), s.players...) }

func (s *Session) PlayerByConn(conn PeerID) *Player {
	for _, p := range s.players {
		if p.Conn == conn {
			return p
		}
	}
	return nil
}

func (s *Session) PlayerIndex(p *Player) int {
	for i, q := range s.players {
		if q == p {
			return i
		}
	}
	return -1
}

// Invoke 投递来自网络的 RPC（在 tick 线程调用）
func (s *Session) Invoke(call Call) bool {
	if s.ended {
		return false
	}
	return s.rpc.Invoke(call)
}

// SetInput 拥有者上报的操控
func (s *Session) SetInput(conn PeerID, rotate float64, thrust bool) bool {
	p := s.PlayerByConn(conn)
	if p == nil {
		logger.Warnw("input from unknown player", "session", s.ID, "conn", conn)
		return false
	}
	return p.SetInput(conn, rotate, thrust)
}

// WriteVar 来自网络的复制变量写入
func (s *Session) WriteVar(writer PeerID, name string, decode func(out any) error) bool {
	return s.replicas.WriteEncoded(writer, name, decode)
}

// PlayerJoined 连接层上报玩家加入；人数达到要求时开始对局
func (s *Session) PlayerJoined(conn PeerID, name string) (*Player, bool) {
	if s.ended {
		return nil, false
	}
	if s.PlayerByConn(conn) != nil {
		logger.Warnw("player already joined", "session", s.ID, "conn", conn)
		return nil, false
	}
	if len(s.players) >= s.cfg.RequiredPlayers {
		logger.Warnw("session full, join rejected", "session", s.ID, "conn", conn)
		return nil, false
	}
	p := s.spawnPlayer(conn, name)
	if p == nil {
		return nil, false
	}
	s.players = append(s.players, p)
	if s.State() != WaitingForPlayers {
		s.Scores.Append(s.local, 0)
	}
	logger.Infow("player joined", "session", s.ID, "conn", conn, "name", name, "players", len(s.players))
	if s.State() == WaitingForPlayers && len(s.players) == s.cfg.RequiredPlayers {
		s.SetState(GameStarted)
	}
	return p, true
}

// PlayerLeft 移除玩家并同步缩减比分数组；人数不足时回到等待
func (s *Session) PlayerLeft(conn PeerID) {
	p := s.PlayerByConn(conn)
	if p == nil {
		return
	}
	idx := s.PlayerIndex(p)
	p.despawn()
	s.players = append(s.players[:idx], s.players[idx+1:]...)
	if idx < s.Scores.Len() {
		s.Scores.RemoveAt(s.local, idx)
	}
	logger.Infow("player left", "session", s.ID, "conn", conn, "players", len(s.players))
	if s.ended {
		return
	}
	if s.State() != WaitingForPlayers && len(s.players) < s.cfg.RequiredPlayers {
		s.SetState(WaitingForPlayers)
	}
}

// SetState 立即切换状态，并取消尚未执行的延迟切换
func (s *Session) SetState(next GameState) {
	s.cancelPending()
	s.applyState(next)
}

// SetStateAfter 延迟 delay 秒切换；同一时间最多一个待执行的切换
func (s *Session) SetStateAfter(next GameState, delay float64) {
	if delay <= 0 {
		s.SetState(next)
		return
	}
	s.cancelPending()
	s.pending = s.sched.After(delay, nil, func() {
		s.pending = 0
		s.applyState(next)
	})
}

func (s *Session) cancelPending() {
	s.sched.Cancel(s.pending)
	s.pending = 0
}

func (s *Session) applyState(next GameState) {
	if s.ended {
		return
	}
	prev := s.state.Get()
	if !s.state.Set(s.local, next) {
		return
	}
	logger.Infow("game state changed", "session", s.ID, "from", prev, "to", next)
	s.rpc.Broadcast(Call{Name: RPCStateChanged, Caller: s.local, State: next})
	s.handleStateChange(next)
}

// handleStateChange 仅在权威端执行的状态副作用
func (s *Session) handleStateChange(next GameState) {
	switch next {
	case WaitingForPlayers:
		s.TimeRemaining.Set(s.local, s.cfg.GameTimeLimit)
		s.IsPlaying.Set(s.local, false)
		s.turnStart.Reset()
	case GameStarted, GameRestarted:
		s.TimeRemaining.Set(s.local, s.cfg.GameTimeLimit)
		s.IsPlaying.Set(s.local, false)
		s.Scores.Reset(s.local, len(s.players))
		if next == GameStarted {
			s.rpc.Broadcast(Call{Name: RPCHideMenu, Caller: s.local})
		}
		s.turnStart.Start()
	case PlayerTurnStart:
		s.IsPlaying.Set(s.local, true)
		s.rpc.Broadcast(Call{Name: RPCHideMenu, Caller: s.local})
	case PlayerTurnEnd:
		s.IsPlaying.Set(s.local, false)
		if s.cfg.GameOver(s) {
			s.SetStateAfter(GameOver, s.cfg.StateDelay)
			return
		}
		s.turnStart.Start()
	case GameOver:
		s.IsPlaying.Set(s.local, false)
		s.turnStart.Reset()
	}
}

func (s *Session) onTurnStartTimerComplete() {
	s.SetStateAfter(PlayerTurnStart, s.cfg.StateDelay)
}

// PlayerDied 被消灭玩家的“另一位”得分（两人规则：(index+1) mod 人数），随后回合结束。
// 只在 PlayerTurnStart 内计分，同一 tick 的第二次消灭不会重复计分
func (s *Session) PlayerDied(p *Player) {
	if s.State() != PlayerTurnStart {
		logger.Debugw("elimination ignored outside of a turn", "session", s.ID, "player", p.ID, "state", s.State())
		return
	}
	idx := s.PlayerIndex(p)
	if idx == -1 {
		logger.Errorw("eliminated player not found in session", "session", s.ID, "player", p.ID)
		return
	}
	scorer := (idx + 1) % len(s.players)
	v, _ := s.Scores.At(scorer)
	s.Scores.Set(s.local, scorer, v+1)
	logger.Infow("player eliminated", "session", s.ID, "eliminated", idx, "scorer", scorer, "scores", s.Scores.Values())
	s.SetState(PlayerTurnEnd)
}

// Tick 推进一个固定步长。暂停时只推进计时器与视觉旋转
func (s *Session) Tick(dt float64) {
	if s.ended {
		return
	}
	// 先推进调度时钟，倒计时完成时登记的延迟切换从本 tick 结束的时间算起
	s.sched.Advance(dt)
	s.turnStart.Tick(dt)
	if !s.IsPlaying.Get() {
		s.world.Spin(dt)
		return
	}
	if t := s.TimeRemaining.Get(); t > 0 {
		t -= dt
		if t <= 0 {
			s.TimeRemaining.Set(s.local, 0)
			s.SetState(GameOver)
			s.world.Spin(dt)
			return
		}
		s.TimeRemaining.Set(s.local, t)
	}
	for _, p := range s.players {
		p.applyControls(dt)
	}
	s.world.Step(dt)
}

// End 结束会话：解除计时器订阅、清理全部实体、通知所有端显示主菜单
func (s *Session) End() {
	if s.ended {
		return
	}
	s.cancelPending()
	s.timerSub.Cancel()
	s.turnStart.Reset()
	s.IsPlaying.Set(s.local, false)
	for _, p := range s.players {
		p.despawn()
	}
	s.players = nil
	for _, b := range s.world.Bodies() {
		if b.Kind != KindWell {
			s.world.Despawn(b.ID)
		}
	}
	for _, g := range s.world.Wells() {
		g.deactivate()
	}
	s.rpc.Broadcast(Call{Name: RPCShowMenu, Caller: s.local})
	s.ended = true
	logger.Infow("session ended", "session", s.ID)
}

func (s *Session) playerFor(call Call) *Player {
	p := s.PlayerByConn(call.Caller)
	if p == nil {
		logger.Warnw("rpc from peer without a player", "session", s.ID, "rpc", call.Name, "caller", call.Caller)
	}
	return p
}

func (s *Session) handleFire(call Call) {
	if p := s.playerFor(call); p != nil {
		p.fire()
	}
}

func (s *Session) handleRegister(call Call) {
	p := s.playerFor(call)
	if p == nil {
		return
	}
	g := s.world.Well(call.Well)
	if g == nil {
		logger.Warnw("register with unknown gravity well", "session", s.ID, "well", call.Well, "caller", call.Caller)
		return
	}
	if !g.Affects.Has(p.Layer) {
		logger.Debugw("register rejected, layer not affected by well", "well", g.ID, "player", p.ID, "layer", p.Layer)
		return
	}
	g.Register(s.local, p.ID)
}

func (s *Session) handleUnregister(call Call) {
	p := s.playerFor(call)
	if p == nil {
		return
	}
	g := s.world.Well(call.Well)
	if g == nil {
		return
	}
	g.Unregister(s.local, p.ID)
}

// handleRematch 调用方的状态可能已过期，只有确实处于 GameOver 才重开
func (s *Session) handleRematch(call Call) {
	if call.Caller != s.local && s.playerFor(call) == nil {
		return
	}
	if s.State() != GameOver {
		logger.Debugw("rematch rejected, game not over", "session", s.ID, "caller", call.Caller, "state", s.State())
		return
	}
	s.SetState(GameRestarted)
}

func (s *Session) handleExit(call Call) {
	if call.Caller != s.local && s.playerFor(call) == nil {
		return
	}
	logger.Infow("exit requested", "session", s.ID, "caller", call.Caller)
	s.End()
}
