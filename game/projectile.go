package game

// ProjectileConfig 子弹参数
type ProjectileConfig struct {
	Speed    float64 `json:"speed"`
	Lifetime float64 `json:"lifetime"`
	Radius   float64 `json:"radius"`
}

// Projectile 由权威端在开火请求时生成
type Projectile struct {
	*Body
	world     *World
	SpawnTime float64

	// destroyed 只由权威端置位，单调 false → true；所有摧毁效果都经它把关
	destroyed bool
}

func (s *Session) spawnProjectile(owner *Player, pos Vec2, rot float64) *Projectile {
	cfg := s.cfg.Player.Projectile
	p := &Projectile{world: s.world, SpawnTime: s.sched.Now()}
	p.Body = &Body{
		Kind:        KindProjectile,
		Owner:       owner.Conn,
		Layer:       owner.fighter.projectileLayer,
		Pos:         pos,
		Rot:         rot,
		Vel:         Up(rot).Scale(cfg.Speed),
		Kinematic:   true,
		Radius:      cfg.Radius,
		Collides:    true,
		Attractable: true,
		OnContact:   p.onContact,
	}
	if !s.world.Spawn(p.Body) {
		return nil
	}
	s.sched.After(cfg.Lifetime, p, func() { p.Destroy() })
	return p
}

func (p *Projectile) Destroyed() bool { return p.destroyed }

// Destroy 至多生效一次；重复调用（例如同一 tick 内命中两个碰撞体）返回 false
func (p *Projectile) Destroy() bool {
	if !guard(ServerAuthority(), p.world.local, "destroy projectile") {
		return false
	}
	if p.destroyed {
		return false
	}
	p.destroyed = true
	if !p.Alive() {
		// 已被外部直接移除（会话清理），不再产生效果
		return false
	}
	p.world.Despawn(p.ID)
	return true
}

func (p *Projectile) onContact(other *Body) {
	if p.destroyed {
		return
	}
	if other.Destroyable != nil {
		logger.Debugw("projectile hit destroyable", "projectile", p.ID, "target", other.ID)
		other.Destroyable()
	} else {
		logger.Debugw("projectile hit non-destroyable", "projectile", p.ID, "target", other.ID, "kind", other.Kind)
	}
	p.Destroy()
}

// Explosion 玩家被消灭时生成的效果实体，持续时间结束后自行移除
type Explosion struct {
	*Body
}

func (s *Session) spawnExplosion(at Vec2) *Explosion {
	e := &Explosion{Body: &Body{
		Kind:      KindExplosion,
		Owner:     ServerPeer,
		Layer:     LayerEffect,
		Pos:       at,
		Kinematic: true,
	}}
	if !s.world.Spawn(e.Body) {
		return nil
	}
	s.sched.After(s.cfg.Player.ExplosionDuration, e, func() { s.world.Despawn(e.ID) })
	return e
}
