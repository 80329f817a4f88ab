package game

import (
	"math"
	"sort"

	"github.com/solarlune/resolv"
)

// 碰撞空间按像素网格划分：每个世界单位 spaceScale 像素，单元边长 spaceCell 像素。
// 边界外保留 spaceMargin 个单位的余量
const (
	spaceScale  = 16
	spaceCell   = 32
	spaceMargin = 4
	// 未设置边界时的碰撞空间半宽
	defaultSpaceExtent = 64
)

// EntityID 稳定实体 id，进程内不复用
type EntityID uint64

// Kind 实体种类
type Kind int

const (
	KindPlayer Kind = iota
	KindProjectile
	KindExplosion
	KindWell
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindProjectile:
		return "projectile"
	case KindExplosion:
		return "explosion"
	case KindWell:
		return "well"
	}
	return "unknown"
}

// Body 网络实体的物理/变换部分。所有字段只由权威端修改，经变换帧复制给远端
type Body struct {
	ID    EntityID
	Kind  Kind
	Owner PeerID
	Layer Layer

	Pos   Vec2
	Vel   Vec2
	Rot   float64 // 度
	Force Vec2    // 当前 tick 累积的力，积分后清零
	Mass  float64

	// Kinematic 为 true 时不受力积分，引力直接位移
	Kinematic bool
	// Radius 圆形碰撞体半径
	Radius float64
	// Collides 碰撞体是否启用
	Collides    bool
	Attractable bool
	Wrap        bool

	// Destroyable 非 nil 表示可被摧毁，调用即摧毁目标
	Destroyable func()
	// OnContact 与另一实体发生接触
	OnContact func(other *Body)

	alive  bool
	obj    *resolv.Object
	circle *resolv.Circle
}

// Alive 实体是否仍在世界中
func (b *Body) Alive() bool { return b != nil && b.alive }

// World 实体生命周期管理：按 id 持有所有网络实体，推进物理并报告接触
type World struct {
	local  PeerID
	bounds Vec2 // 半宽/半高，用于屏幕环绕

	nextID EntityID
	bodies map[EntityID]*Body
	wells  []*GravityWell

	spawned   listeners[*Body]
	despawned listeners[*Body]

	pulls []pull

	// space 圆形碰撞体的宽相位网格；origin 把世界坐标平移到网格的非负坐标
	space  *resolv.Space
	origin Vec2
}

func NewWorld(local PeerID, bounds Vec2) *World {
	hx, hy := bounds.X+spaceMargin, bounds.Y+spaceMargin
	if bounds.X <= 0 {
		hx = defaultSpaceExtent
	}
	if bounds.Y <= 0 {
		hy = defaultSpaceExtent
	}
	return &World{
		local:  local,
		bounds: bounds,
		bodies: make(map[EntityID]*Body),
		space:  resolv.NewSpace(int(math.Ceil(2*hx*spaceScale)), int(math.Ceil(2*hy*spaceScale)), spaceCell, spaceCell),
		origin: Vec2{X: hx, Y: hy},
	}
}

func (w *World) Local() PeerID     { return w.local }
func (w *World) IsAuthority() bool { return w.local == ServerPeer }
func (w *World) Bounds() Vec2      { return w.bounds }

// Spawn 由权威端创建实体并分配 id；远端只能通过复制看到它
func (w *World) Spawn(b *Body) bool {
	if !guard(ServerAuthority(), w.local, "spawn "+b.Kind.String()) {
		return false
	}
	if b.alive {
		return false
	}
	w.nextID++
	b.ID = w.nextID
	if b.Mass <= 0 {
		b.Mass = 1
	}
	b.alive = true
	w.bodies[b.ID] = b
	w.addCollider(b)
	if b.Attractable {
		for _, well := range w.wells {
			if well.Affects.Has(b.Layer) {
				well.Register(w.local, b.ID)
			}
		}
	}
	w.spawned.emit(b)
	return true
}

// Despawn 幂等；先从所有引力井注销再移除
func (w *World) Despawn(id EntityID) bool {
	if !guard(ServerAuthority(), w.local, "despawn") {
		return false
	}
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	for _, well := range w.wells {
		well.Unregister(w.local, id)
	}
	b.alive = false
	b.Collides = false
	w.removeCollider(b)
	delete(w.bodies, id)
	w.despawned.emit(b)
	return true
}

func (w *World) Lookup(id EntityID) (*Body, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

func (w *World) Alive(id EntityID) bool {
	_, ok := w.bodies[id]
	return ok
}

func (w *World) Len() int { return len(w.bodies) }

// Bodies 按 id 排序的存活实体
func (w *World) Bodies() []*Body {
	out := make([]*Body, 0, len(w.bodies))
	for _, b := range w.bodies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) Wells() []*GravityWell { return append([]*GravityWell(nil), w.wells...) }

// Well 按实体 id 查找引力井
func (w *World) Well(id EntityID) *GravityWell {
	for _, g := range w.wells {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// AddWell 生成引力井并激活（扫描已有的可吸引实体）
func (w *World) AddWell(cfg WellConfig) *GravityWell {
	g := newGravityWell(w, cfg)
	if !w.Spawn(g.Body) {
		return nil
	}
	w.wells = append(w.wells, g)
	g.activate()
	return g
}

// RemoveWell 注销井并清空其注册表
func (w *World) RemoveWell(id EntityID) bool {
	for i, g := range w.wells {
		if g.ID != id {
			continue
		}
		if !w.Despawn(id) {
			return false
		}
		g.deactivate()
		w.wells = append(w.wells[:i], w.wells[i+1:]...)
		return true
	}
	return false
}

func (w *World) OnSpawn(owner Lifetime, fn func(*Body)) Subscription {
	return w.spawned.add(owner, fn)
}

func (w *World) OnDespawn(owner Lifetime, fn func(*Body)) Subscription {
	return w.despawned.add(owner, fn)
}

// Spin 引力井的视觉旋转，所有端都可以执行
func (w *World) Spin(dt float64) {
	for _, g := range w.wells {
		g.Spin(dt)
	}
}

// Step 推进一个固定步长（仅权威端）：引力 → 积分 → 环绕 → 接触
func (w *World) Step(dt float64) {
	w.Spin(dt)
	if !w.IsAuthority() {
		return
	}
	w.applyGravity(dt)
	bodies := w.Bodies()
	for _, b := range bodies {
		if !b.Kinematic {
			b.Vel = b.Vel.Add(b.Force.Scale(dt / b.Mass))
		}
		b.Force = Vec2{}
		b.Pos = b.Pos.Add(b.Vel.Scale(dt))
		if b.Wrap {
			w.wrap(b)
		}
		w.syncCollider(b)
	}
	w.resolveContacts(bodies)
}

// applyGravity 所有井先清理失效引用，再基于同一份位置快照计算引力，最后统一施加
func (w *World) applyGravity(dt float64) {
	w.pulls = w.pulls[:0]
	for _, g := range w.wells {
		g.prune()
		w.pulls = g.attract(w.pulls)
	}
	for _, p := range w.pulls {
		if p.body.Kinematic {
			p.body.Pos = p.body.Pos.Add(p.force.Scale(dt))
		} else {
			p.body.Force = p.body.Force.Add(p.force)
		}
	}
}

func (w *World) wrap(b *Body) {
	bx, by := w.bounds.X+b.Radius, w.bounds.Y+b.Radius
	if w.bounds.X > 0 {
		if b.Pos.X > bx {
			b.Pos.X = -bx
		} else if b.Pos.X < -bx {
			b.Pos.X = bx
		}
	}
	if w.bounds.Y > 0 {
		if b.Pos.Y > by {
			b.Pos.Y = -by
		} else if b.Pos.Y < -by {
			b.Pos.Y = by
		}
	}
}

type contact struct{ a, b *Body }

// addCollider 为实体创建圆形碰撞体并放入碰撞空间。
// 包围盒比圆大 2 像素，网格按整像素占用单元
func (w *World) addCollider(b *Body) {
	size := 2*b.Radius*spaceScale + 2
	b.obj = resolv.NewObject(0, 0, size, size, b.Kind.String())
	b.circle = resolv.NewCircle(0, 0, b.Radius*spaceScale)
	b.obj.SetShape(b.circle)
	b.obj.Data = b
	w.space.Add(b.obj)
	w.syncCollider(b)
}

func (w *World) removeCollider(b *Body) {
	if b.obj == nil {
		return
	}
	w.space.Remove(b.obj)
	b.obj.Data = nil
	b.obj = nil
	b.circle = nil
}

// syncCollider 把实体位置换算到网格像素坐标：包围盒以实体为中心，圆心与实体位置重合
func (w *World) syncCollider(b *Body) {
	if b.obj == nil {
		return
	}
	c := b.Pos.Add(w.origin).Scale(spaceScale)
	b.obj.X = c.X - b.obj.W/2
	b.obj.Y = c.Y - b.obj.H/2
	b.obj.Update()
	b.circle.X, b.circle.Y = c.X, c.Y
}

// overlaps 圆形碰撞体相交（含相切）
func overlaps(a, b *resolv.Circle) bool {
	return math.Hypot(a.X-b.X, a.Y-b.Y) <= a.Radius()+b.Radius()
}

// resolveContacts 先收集本 tick 的全部接触对，再逐对分发；
// 分发前重新检查存活与碰撞体状态，已被前一对摧毁的实体不再触发
func (w *World) resolveContacts(bodies []*Body) {
	var pairs []contact
	for _, a := range bodies {
		if !a.Collides || a.obj == nil {
			continue
		}
		for _, b := range w.candidates(a) {
			if !b.Collides || !layersCollide(a.Layer, b.Layer) {
				continue
			}
			if overlaps(a.circle, b.circle) {
				pairs = append(pairs, contact{a, b})
			}
		}
	}
	for _, c := range pairs {
		touch(c.a, c.b)
		touch(c.b, c.a)
	}
}

// candidates 与 a 共享网格单元、id 更大的实体，按 id 排序，每对只出现一次
func (w *World) candidates(a *Body) []*Body {
	col := a.obj.Check(0, 0)
	if col == nil {
		return nil
	}
	var out []*Body
	seen := make(map[EntityID]bool, len(col.Objects))
	for _, o := range col.Objects {
		b, ok := o.Data.(*Body)
		if !ok || b.ID <= a.ID || !b.Alive() || seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func touch(self, other *Body) {
	if !self.Alive() || !other.Alive() || !self.Collides || !other.Collides {
		return
	}
	if self.OnContact != nil {
		self.OnContact(other)
	}
}

// destroyOnContact 井与 fighter 的接触行为：对方可摧毁时摧毁对方
func destroyOnContact(other *Body) {
	if other.Destroyable != nil {
		other.Destroyable()
	}
}
