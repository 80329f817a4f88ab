package game

import "math"

// MinAttractDistance 小于该距离不施力，避免除以接近零的距离
const MinAttractDistance = 0.01

// WellConfig 引力井参数
type WellConfig struct {
	Pos            Vec2      `json:"pos"`
	Strength       float64   `json:"strength"`
	Radius         float64   `json:"radius"`
	RotationSpeed  float64   `json:"rotationSpeed"` // 度/秒，仅视觉
	ColliderRadius float64   `json:"colliderRadius"`
	Affects        LayerMask `json:"affects"`
}

func DefaultWellConfig() WellConfig {
	return WellConfig{
		Strength:       4,
		Radius:         5,
		RotationSpeed:  30,
		ColliderRadius: 0.5,
		Affects:        MaskOf(LayerPlayer1, LayerPlayer2, LayerPlayer1Projectile, LayerPlayer2Projectile),
	}
}

// Falloff 线性衰减：中心为 1，半径边缘为 0
func Falloff(distance, radius float64) float64 {
	if radius <= 0 {
		return 0
	}
	return 1 - distance/radius
}

// Attraction 计算位于 pos 的物体受到的引力，方向指向井心。
// 超出半径或距离小于 MinAttractDistance 时返回零向量与 false
func Attraction(strength, radius float64, well, pos Vec2) (Vec2, bool) {
	dir := well.Sub(pos)
	d := dir.Len()
	if d > radius || d < MinAttractDistance {
		return Vec2{}, false
	}
	mag := strength * Falloff(d, radius)
	return dir.Scale(mag / d), true
}

type pull struct {
	body  *Body
	force Vec2
}

// GravityWell 引力源。注册表只保存实体 id（弱引用），不持有实体生命周期；
// 注册表只在权威端被修改
type GravityWell struct {
	*Body
	world *World

	Strength      float64
	Radius        float64
	RotationSpeed float64
	Affects       LayerMask

	registry []EntityID
	index    map[EntityID]struct{}
}

func newGravityWell(w *World, cfg WellConfig) *GravityWell {
	g := &GravityWell{
		world:         w,
		Strength:      cfg.Strength,
		Radius:        cfg.Radius,
		RotationSpeed: cfg.RotationSpeed,
		Affects:       cfg.Affects,
		index:         make(map[EntityID]struct{}),
	}
	g.Body = &Body{
		Kind:      KindWell,
		Owner:     ServerPeer,
		Layer:     LayerWell,
		Pos:       cfg.Pos,
		Kinematic: true,
		Radius:    cfg.ColliderRadius,
		Collides:  cfg.ColliderRadius > 0,
		OnContact: destroyOnContact,
	}
	return g
}

// Register 幂等：已注册时不重复添加。目标必须是存活实体
func (g *GravityWell) Register(caller PeerID, id EntityID) bool {
	if !guard(ServerAuthority(), caller, "gravity register") {
		return false
	}
	if !g.world.Alive(id) {
		logger.Debugw("gravity register skipped, entity not alive", "well", g.ID, "entity", id)
		return false
	}
	if _, ok := g.index[id]; ok {
		return true
	}
	g.index[id] = struct{}{}
	g.registry = append(g.registry, id)
	logger.Debugw("attractable registered", "well", g.ID, "entity", id)
	return true
}

// Unregister 幂等：不存在时为 no-op
func (g *GravityWell) Unregister(caller PeerID, id EntityID) bool {
	if !guard(ServerAuthority(), caller, "gravity unregister") {
		return false
	}
	if _, ok := g.index[id]; !ok {
		return true
	}
	delete(g.index, id)
	for i, rid := range g.registry {
		if rid == id {
			g.registry = append(g.registry[:i], g.registry[i+1:]...)
			break
		}
	}
	return true
}

func (g *GravityWell) Contains(id EntityID) bool {
	_, ok := g.index[id]
	return ok
}

// Registered 当前注册的实体 id（按注册顺序）
func (g *GravityWell) Registered() []EntityID {
	return append([]EntityID(nil), g.registry...)
}

// activate 扫描所有存活的可吸引实体，层匹配的全部注册
func (g *GravityWell) activate() {
	if !g.world.IsAuthority() {
		return
	}
	for _, b := range g.world.Bodies() {
		if !b.Attractable {
			continue
		}
		if g.Affects.Has(b.Layer) {
			g.Register(g.world.local, b.ID)
		} else {
			logger.Debugw("well activation skipped attractable", "well", g.ID, "entity", b.ID, "layer", b.Layer)
		}
	}
}

func (g *GravityWell) deactivate() {
	g.registry = nil
	g.index = make(map[EntityID]struct{})
}

// Spin 纯视觉旋转
func (g *GravityWell) Spin(dt float64) {
	g.Rot = math.Mod(g.Rot+g.RotationSpeed*dt, 360)
}

// prune 移除已销毁实体的注册项，不假设对方一定注销过
func (g *GravityWell) prune() int {
	n := 0
	kept := g.registry[:0]
	for _, id := range g.registry {
		if g.world.Alive(id) {
			kept = append(kept, id)
			continue
		}
		delete(g.index, id)
		n++
	}
	g.registry = kept
	return n
}

// attract 只计算不施加，由 World 统一施加以保证同一 tick 使用同一份位置快照
func (g *GravityWell) attract(out []pull) []pull {
	for _, id := range g.registry {
		b, ok := g.world.Lookup(id)
		if !ok {
			continue
		}
		f, ok := Attraction(g.Strength, g.Radius, g.Pos, b.Pos)
		if !ok {
			continue
		}
		out = append(out, pull{body: b, force: f})
	}
	return out
}
