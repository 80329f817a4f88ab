package game

import (
	"fmt"
	"math"
)

// PlayerConfig 玩家与 fighter 参数；出生点、朝向按连接 id 索引
type PlayerConfig struct {
	SpawnPositions    []Vec2           `json:"spawnPositions"`
	SpawnRotations    []float64        `json:"spawnRotations"`
	FighterCount      int              `json:"fighterCount"`
	TurnSpeed         float64          `json:"turnSpeed"`   // 度/秒
	ThrustSpeed       float64          `json:"thrustSpeed"` // 每个固定步长乘以 dt
	FireRate          float64          `json:"fireRate"`    // 两次开火的最小间隔（秒）
	MuzzleOffset      float64          `json:"muzzleOffset"`
	RevealDelay       float64          `json:"revealDelay"`
	Radius            float64          `json:"radius"`
	Mass              float64          `json:"mass"`
	ExplosionDuration float64          `json:"explosionDuration"`
	Projectile        ProjectileConfig `json:"projectile"`
}

func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SpawnPositions:    []Vec2{{X: -8, Y: 0}, {X: 8, Y: 0}},
		SpawnRotations:    []float64{-90, 90},
		FighterCount:      3,
		TurnSpeed:         200,
		ThrustSpeed:       120,
		FireRate:          0.5,
		MuzzleOffset:      0.6,
		RevealDelay:       0.5,
		Radius:            0.5,
		Mass:              1,
		ExplosionDuration: 1,
		Projectile:        ProjectileConfig{Speed: 20, Lifetime: 1, Radius: 0.1},
	}
}

// Fighter 玩家操控的飞船。与玩家实体同生命周期，跨回合只隐藏/复位
type Fighter struct {
	Index     int
	Thrusting *NetVar[bool] // 只有拥有者连接可写

	projectileLayer Layer
	rotationInput   float64
	nextFireTime    float64
	visible         bool
}

func (f *Fighter) Visible() bool          { return f.visible }
func (f *Fighter) RotationInput() float64 { return f.rotationInput }
func (f *Fighter) NextFireTime() float64  { return f.nextFireTime }
func (f *Fighter) ProjectileLayer() Layer { return f.projectileLayer }

// Player 会话中的玩家（网络实体），由连接 id 标识
type Player struct {
	*Body
	Conn         PeerID
	Name         *NetVar[string]
	FighterIndex *NetVar[int]

	session   *Session
	fighter   *Fighter
	thrusting *NetVar[bool]
	spawnPos  Vec2
	spawnRot  float64
	reveal    Handle
	subs      []Subscription
}

func (p *Player) Fighter() *Fighter { return p.fighter }

func (p *Player) String() string {
	return fmt.Sprintf("%s(%s)", p.Name.Get(), p.Conn)
}

// spawnPlayer 权威端创建玩家实体：按连接 id 选择出生点与层，随机 fighter 外观
func (s *Session) spawnPlayer(conn PeerID, name string) *Player {
	cfg := s.cfg.Player
	if int(conn) < 0 || int(conn) >= len(cfg.SpawnPositions) {
		logger.Errorw("no spawn position defined for player, not placed", "session", s.ID, "conn", conn)
		return nil
	}
	rot := 0.0
	if int(conn) < len(cfg.SpawnRotations) {
		rot = cfg.SpawnRotations[conn]
	} else {
		logger.Warnw("no spawn rotation defined for player", "session", s.ID, "conn", conn)
	}

	p := &Player{Conn: conn, session: s, spawnPos: cfg.SpawnPositions[conn], spawnRot: rot}
	p.Body = &Body{
		Kind:        KindPlayer,
		Owner:       conn,
		Layer:       PlayerLayer(conn),
		Pos:         p.spawnPos,
		Rot:         rot,
		Mass:        cfg.Mass,
		Radius:      cfg.Radius,
		Attractable: true,
		Wrap:        true,
		Destroyable: p.DestroyTarget,
		OnContact:   destroyOnContact,
	}
	if !s.world.Spawn(p.Body) {
		return nil
	}

	index := 0
	if cfg.FighterCount > 0 {
		index = s.rng.Intn(cfg.FighterCount)
	}
	p.Name = NewNetVar(fmt.Sprintf("player.%d.name", p.ID), ServerAuthority(), name)
	p.FighterIndex = NewNetVar(fmt.Sprintf("player.%d.fighter_index", p.ID), ServerAuthority(), index)
	p.thrusting = NewNetVar(fmt.Sprintf("fighter.%d.thrusting", p.ID), OwnerAuthority(conn), false)
	s.replicas.Add(p.Name)
	s.replicas.Add(p.FighterIndex)
	s.replicas.Add(p.thrusting)

	p.spawnFighter(index)
	p.subs = append(p.subs,
		p.FighterIndex.OnChange(p, func(_, idx int) { p.spawnFighter(idx) }),
		s.OnStateChanged(p, p.onStateChanged),
	)
	logger.Infow("player spawned", "session", s.ID, "player", p.ID, "conn", conn, "name", name,
		"pos", p.spawnPos, "rot", rot, "fighter", index)
	return p
}

// spawnFighter 索引越界时记录错误并跳过，玩家保留但没有 fighter
func (p *Player) spawnFighter(index int) {
	if index < 0 || index >= p.session.cfg.Player.FighterCount {
		logger.Errorw("invalid fighter index, fighter not spawned", "player", p.ID, "conn", p.Conn, "index", index)
		return
	}
	p.fighter = &Fighter{
		Index:           index,
		Thrusting:       p.thrusting,
		projectileLayer: ProjectileLayer(p.Conn),
	}
	p.setVisible(false)
}

// setVisible 显示/隐藏 fighter，同时启用/禁用碰撞体
func (p *Player) setVisible(v bool) {
	if p.fighter == nil {
		p.Collides = false
		return
	}
	p.fighter.visible = v
	p.Collides = v && p.Alive()
}

func (p *Player) cancelReveal() {
	p.session.sched.Cancel(p.reveal)
	p.reveal = 0
}

func (p *Player) resetToSpawn() {
	p.Vel = Vec2{}
	p.Force = Vec2{}
	p.Pos = p.spawnPos
	p.Rot = p.spawnRot
	if p.fighter != nil {
		p.fighter.rotationInput = 0
	}
}

func (p *Player) onStateChanged(state GameState) {
	switch state {
	case GameStarted, GameRestarted, WaitingForPlayers, PlayerTurnEnd:
		p.cancelReveal()
		p.resetToSpawn()
		p.setVisible(false)
	case PlayerTurnStart:
		p.cancelReveal()
		p.resetToSpawn()
		p.reveal = p.session.sched.After(p.session.cfg.Player.RevealDelay, p, func() {
			p.reveal = 0
			p.setVisible(true)
		})
	}
}

// SetInput 拥有者连接上报的操控意图；其他连接写入被拒绝
func (p *Player) SetInput(caller PeerID, rotate float64, thrust bool) bool {
	if !guard(OwnerAuthority(p.Conn), caller, "fighter input") {
		return false
	}
	if p.fighter == nil {
		return false
	}
	p.fighter.rotationInput = math.Max(-1, math.Min(1, rotate))
	p.thrusting.Set(caller, thrust)
	return true
}

// applyControls 旋转与推进，由权威端在固定步长内执行
func (p *Player) applyControls(dt float64) {
	f := p.fighter
	if f == nil || !f.visible {
		return
	}
	cfg := p.session.cfg.Player
	if f.rotationInput != 0 {
		p.Rot = math.Mod(p.Rot+f.rotationInput*cfg.TurnSpeed*dt, 360)
	}
	if f.Thrusting.Get() {
		p.Force = p.Force.Add(Up(p.Rot).Scale(cfg.ThrustSpeed * dt))
	}
}

// fire 重新校验调用方可能已过期的判断：正在对局、fighter 可见、冷却已过。
// 冷却时间戳同时挡住重复投递的开火请求
func (p *Player) fire() bool {
	s := p.session
	if !s.IsPlaying.Get() {
		logger.Debugw("fire rejected, not playing", "player", p.ID, "state", s.State())
		return false
	}
	f := p.fighter
	if f == nil || !f.visible {
		logger.Debugw("fire rejected, fighter not active", "player", p.ID)
		return false
	}
	now := s.sched.Now()
	if now < f.nextFireTime {
		logger.Debugw("fire rejected, reloading", "player", p.ID, "now", now, "next", f.nextFireTime)
		return false
	}
	cfg := s.cfg.Player
	f.nextFireTime = now + cfg.FireRate
	muzzle := p.Pos.Add(Up(p.Rot).Scale(cfg.MuzzleOffset))
	return s.spawnProjectile(p, muzzle, p.Rot) != nil
}

// DestroyTarget 玩家被消灭：生成爆炸并通知会话计分
func (p *Player) DestroyTarget() {
	if !guard(ServerAuthority(), p.session.local, "destroy player") {
		return
	}
	logger.Infow("player destroyed", "session", p.session.ID, "player", p.ID, "conn", p.Conn)
	p.session.spawnExplosion(p.Pos)
	p.session.PlayerDied(p)
}

// despawn 取消全部订阅与延时调用后再移除实体
func (p *Player) despawn() {
	for _, sub := range p.subs {
		sub.Cancel()
	}
	p.subs = nil
	p.session.sched.CancelOwner(p)
	p.reveal = 0
	p.session.replicas.Remove(p.Name.Name())
	p.session.replicas.Remove(p.FighterIndex.Name())
	p.session.replicas.Remove(p.thrusting.Name())
	p.session.world.Despawn(p.ID)
}
