package game

import "math"

// Vec2 二维向量
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (a Vec2) Add(b Vec2) Vec2      { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Sub(b Vec2) Vec2      { return Vec2{a.X - b.X, a.Y - b.Y} }
func (a Vec2) Scale(k float64) Vec2 { return Vec2{a.X * k, a.Y * k} }
func (a Vec2) Len() float64         { return math.Hypot(a.X, a.Y) }
func (a Vec2) Dist(b Vec2) float64  { return a.Sub(b).Len() }

// Normalized 零向量返回零向量
func (a Vec2) Normalized() Vec2 {
	l := a.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{a.X / l, a.Y / l}
}

// Up 旋转 deg 度（逆时针，0 度朝 +Y）后的朝向单位向量
func Up(deg float64) Vec2 {
	r := deg * math.Pi / 180
	return Vec2{-math.Sin(r), math.Cos(r)}
}

// Layer 碰撞/引力归属层
type Layer uint8

const (
	LayerDefault Layer = iota
	LayerPlayer1
	LayerPlayer2
	LayerPlayer1Projectile
	LayerPlayer2Projectile
	LayerWell
	LayerEffect
)

var layerNames = [...]string{"default", "player1", "player2", "player1-projectile", "player2-projectile", "well", "effect"}

func (l Layer) String() string {
	if int(l) < len(layerNames) {
		return layerNames[l]
	}
	return "unknown"
}

// LayerMask 层集合
type LayerMask uint32

func MaskOf(layers ...Layer) LayerMask {
	var m LayerMask
	for _, l := range layers {
		m |= 1 << l
	}
	return m
}

func (m LayerMask) Has(l Layer) bool { return m&(1<<l) != 0 }

// PlayerLayer 按连接 id 分配玩家层：0 为 Player 1，其余为 Player 2
func PlayerLayer(conn PeerID) Layer {
	if conn == 0 {
		return LayerPlayer1
	}
	return LayerPlayer2
}

// ProjectileLayer 按连接 id 分配子弹层
func ProjectileLayer(conn PeerID) Layer {
	if conn == 0 {
		return LayerPlayer1Projectile
	}
	return LayerPlayer2Projectile
}

// collisionMatrix 哪些层之间会产生接触
var collisionMatrix = map[Layer]LayerMask{
	LayerPlayer1:           MaskOf(LayerPlayer2, LayerPlayer2Projectile, LayerWell),
	LayerPlayer2:           MaskOf(LayerPlayer1, LayerPlayer1Projectile, LayerWell),
	LayerPlayer1Projectile: MaskOf(LayerPlayer2, LayerWell),
	LayerPlayer2Projectile: MaskOf(LayerPlayer1, LayerWell),
	LayerWell:              MaskOf(LayerPlayer1, LayerPlayer2, LayerPlayer1Projectile, LayerPlayer2Projectile),
}

func layersCollide(a, b Layer) bool {
	return collisionMatrix[a].Has(b)
}
