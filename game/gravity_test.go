package game

import (
	"math"
	"testing"
)

func TestFalloffLinear(t *testing.T) {
	if f := Falloff(0, 5); f != 1 {
		t.Fatalf("falloff at center: %v", f)
	}
	if f := Falloff(5, 5); f != 0 {
		t.Fatalf("falloff at radius: %v", f)
	}
	prev := 2.0
	for d := 0.0; d <= 5; d += 0.25 {
		f := Falloff(d, 5)
		if f > prev {
			t.Fatalf("falloff not monotonic at %v", d)
		}
		prev = f
	}
	if f := Falloff(1, 0); f != 0 {
		t.Fatalf("zero radius should yield zero")
	}
}

func TestAttractionCutoffs(t *testing.T) {
	well := Vec2{}
	cases := []struct {
		name string
		pos  Vec2
		ok   bool
	}{
		{"outside radius", Vec2{X: 5.01}, false},
		{"too close", Vec2{X: 0.005}, false},
		{"on center", Vec2{}, false},
		{"inside", Vec2{X: 2}, true},
	}
	for _, c := range cases {
		f, ok := Attraction(4, 5, well, c.pos)
		if ok != c.ok {
			t.Fatalf("%s: ok=%v", c.name, ok)
		}
		if !ok && (f.X != 0 || f.Y != 0) {
			t.Fatalf("%s: expected zero force, got %+v", c.name, f)
		}
	}

	f, _ := Attraction(4, 5, well, Vec2{X: 2})
	want := 4 * (1 - 2.0/5)
	if math.Abs(f.X+want) > 1e-9 || f.Y != 0 {
		t.Fatalf("force should point at the well with magnitude %v: %+v", want, f)
	}
}

func newTestWorld() *World {
	return NewWorld(ServerPeer, Vec2{})
}

func TestRegisterIdempotent(t *testing.T) {
	w := newTestWorld()
	g := w.AddWell(DefaultWellConfig())
	b := &Body{Kind: KindPlayer, Layer: LayerWell}
	w.Spawn(b)

	g.Register(ServerPeer, b.ID)
	g.Register(ServerPeer, b.ID)
	if got := g.Registered(); len(got) != 1 {
		t.Fatalf("expected one entry, got %v", got)
	}
	g.Unregister(ServerPeer, b.ID)
	g.Unregister(ServerPeer, b.ID)
	if g.Contains(b.ID) {
		t.Fatalf("still registered")
	}
}

func TestRegisterRequiresAuthority(t *testing.T) {
	w := newTestWorld()
	g := w.AddWell(DefaultWellConfig())
	b := &Body{Kind: KindPlayer, Layer: LayerWell}
	w.Spawn(b)
	if g.Register(PeerID(0), b.ID) || g.Contains(b.ID) {
		t.Fatalf("client register accepted")
	}
}

func TestSpawnRegistersByLayer(t *testing.T) {
	w := newTestWorld()
	g := w.AddWell(DefaultWellConfig())
	player := &Body{Kind: KindPlayer, Layer: LayerPlayer1, Attractable: true}
	effect := &Body{Kind: KindExplosion, Layer: LayerEffect, Attractable: true}
	w.Spawn(player)
	w.Spawn(effect)
	if !g.Contains(player.ID) {
		t.Fatalf("player layer should be affected")
	}
	if g.Contains(effect.ID) {
		t.Fatalf("effect layer should not be affected")
	}
}

func TestActivateScansExisting(t *testing.T) {
	w := newTestWorld()
	b := &Body{Kind: KindPlayer, Layer: LayerPlayer2, Attractable: true}
	w.Spawn(b)
	g := w.AddWell(DefaultWellConfig())
	if !g.Contains(b.ID) {
		t.Fatalf("activation should register existing attractables")
	}
}

func TestPruneDeadEntries(t *testing.T) {
	w := newTestWorld()
	g := w.AddWell(DefaultWellConfig())
	b := &Body{Kind: KindPlayer, Layer: LayerPlayer1, Attractable: true}
	w.Spawn(b)

	// 绕过 Despawn 的注销，模拟实体消失而未注销
	delete(w.bodies, b.ID)
	if n := g.prune(); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	if len(g.Registered()) != 0 {
		t.Fatalf("registry not pruned")
	}
}

func TestGravityKinematicAndDynamic(t *testing.T) {
	w := newTestWorld()
	cfg := DefaultWellConfig()
	cfg.ColliderRadius = 0
	w.AddWell(cfg)

	dyn := &Body{Kind: KindPlayer, Layer: LayerPlayer1, Pos: Vec2{X: 2}, Attractable: true, Mass: 2}
	kin := &Body{Kind: KindProjectile, Layer: LayerPlayer1Projectile, Pos: Vec2{Y: 2}, Attractable: true, Kinematic: true}
	w.Spawn(dyn)
	w.Spawn(kin)

	w.Step(0.5)
	mag := 4 * (1 - 2.0/5)
	// 动态物体：v = F/m·dt，再 x += v·dt
	wantV := -mag / 2 * 0.5
	if math.Abs(dyn.Vel.X-wantV) > 1e-9 {
		t.Fatalf("dynamic velocity: got %v want %v", dyn.Vel.X, wantV)
	}
	if math.Abs(dyn.Pos.X-(2+wantV*0.5)) > 1e-9 {
		t.Fatalf("dynamic position: %v", dyn.Pos.X)
	}
	if dyn.Force != (Vec2{}) {
		t.Fatalf("force should be cleared after step")
	}
	// 运动学物体：直接位移 F·dt，速度不变
	if math.Abs(kin.Pos.Y-(2-mag*0.5)) > 1e-9 || kin.Vel != (Vec2{}) {
		t.Fatalf("kinematic displacement: pos=%+v vel=%+v", kin.Pos, kin.Vel)
	}
}

func TestWellSpin(t *testing.T) {
	w := newTestWorld()
	g := w.AddWell(DefaultWellConfig())
	for i := 0; i < 13; i++ {
		w.Spin(1)
	}
	if math.Abs(g.Rot-30) > 1e-9 {
		t.Fatalf("spin should wrap at 360, got %v", g.Rot)
	}
}
