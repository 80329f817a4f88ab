package server

import "testing"

func TestTransformsRoundTrip(t *testing.T) {
	in := []Transform{
		{ID: 1, X: 0, Y: 0, Rot: 30},
		{ID: 42, X: -8.5, Y: 3.25, Rot: -90},
	}
	b, err := EncodeTransforms(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 3+len(in)*transformSize {
		t.Fatalf("unexpected frame size %d", len(b))
	}
	if b[0] != transformTag {
		t.Fatalf("missing tag byte")
	}
	out, err := DecodeTransforms(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d transforms", len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("transform %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestTransformsEmpty(t *testing.T) {
	b, err := EncodeTransforms(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTransforms(b)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty frame: %v %v", out, err)
	}
}

func TestTransformsRejectTruncated(t *testing.T) {
	b, _ := EncodeTransforms([]Transform{{ID: 7, X: 1, Y: 2, Rot: 3}})
	for n := 0; n < len(b); n++ {
		if _, err := DecodeTransforms(b[:n]); err == nil {
			t.Fatalf("truncated frame of %d bytes accepted", n)
		}
	}
	bad := append([]byte(nil), b...)
	bad[0] = 0x00
	if _, err := DecodeTransforms(bad); err == nil {
		t.Fatalf("wrong tag accepted")
	}
	if _, err := DecodeTransforms(append(b, 0)); err == nil {
		t.Fatalf("trailing bytes accepted")
	}
}
