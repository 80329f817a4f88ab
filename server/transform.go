package server

import (
	"fmt"

	crunch "github.com/superwhiskers/crunch/v3"

	"spacewar/game"
)

// transformTag 变换帧首字节，与 msgpack 信封区分（0xC1 在 msgpack 中从不使用）
const transformTag byte = 0xC1

// 每个实体：u64 id + 3 × f32
const transformSize = 8 + 3*4

// Transform 一个实体的位置与朝向
type Transform struct {
	ID  game.EntityID
	X   float32
	Y   float32
	Rot float32
}

func transformsOf(bodies []*game.Body) []Transform {
	out := make([]Transform, 0, len(bodies))
	for _, b := range bodies {
		out = append(out, Transform{ID: b.ID, X: float32(b.Pos.X), Y: float32(b.Pos.Y), Rot: float32(b.Rot)})
	}
	return out
}

// EncodeTransforms 编码变换帧：tag, u16 数量, 然后逐个实体（小端）
func EncodeTransforms(ts []Transform) ([]byte, error) {
	if len(ts) > 0xFFFF {
		return nil, fmt.Errorf("too many transforms in one frame: %d", len(ts))
	}
	buf := crunch.NewBuffer()
	buf.Grow(int64(3 + len(ts)*transformSize))
	buf.WriteByteNext(transformTag)
	buf.WriteU16LENext([]uint16{uint16(len(ts))})
	for _, t := range ts {
		buf.WriteU64LENext([]uint64{uint64(t.ID)})
		buf.WriteF32LENext([]float32{t.X, t.Y, t.Rot})
	}
	return buf.Bytes(), nil
}

// DecodeTransforms 解码变换帧；长度与数量不符时报错，不会越界读取
func DecodeTransforms(b []byte) ([]Transform, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("transform frame too short: %d bytes", len(b))
	}
	buf := crunch.NewBuffer(b)
	if tag := buf.ReadByteNext(); tag != transformTag {
		return nil, fmt.Errorf("not a transform frame: tag 0x%02x", tag)
	}
	n := int(buf.ReadU16LENext(1)[0])
	if want := 3 + n*transformSize; len(b) != want {
		return nil, fmt.Errorf("transform frame length %d, want %d for %d entities", len(b), want, n)
	}
	out := make([]Transform, n)
	for i := range out {
		out[i].ID = game.EntityID(buf.ReadU64LENext(1)[0])
		f := buf.ReadF32LENext(3)
		out[i].X, out[i].Y, out[i].Rot = f[0], f[1], f[2]
	}
	return out, nil
}
