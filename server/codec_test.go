package server

import (
	"testing"

	"github.com/gorilla/websocket"
)

func TestCodecRoundTrip(t *testing.T) {
	for _, c := range []Codec{JSONCodec, MsgpackCodec} {
		b, err := c.Encode(MsgInput, InputMessage{Rotate: -1, Thrust: true, Seq: 7})
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		env, err := c.DecodeEnvelope(b)
		if err != nil {
			t.Fatalf("%s decode envelope: %v", c.Name(), err)
		}
		if env.T != MsgInput {
			t.Fatalf("%s: type %q", c.Name(), env.T)
		}
		in, err := DecodePayload[InputMessage](c, env)
		if err != nil {
			t.Fatalf("%s decode payload: %v", c.Name(), err)
		}
		if in.Rotate != -1 || !in.Thrust || in.Seq != 7 {
			t.Fatalf("%s: got %+v", c.Name(), in)
		}
	}
}

func TestCodecFrameTypes(t *testing.T) {
	if JSONCodec.FrameType() != websocket.TextMessage {
		t.Fatalf("json should use text frames")
	}
	if MsgpackCodec.FrameType() != websocket.BinaryMessage {
		t.Fatalf("msgpack should use binary frames")
	}
}

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]string{"": "json", "json": "json", "msgpack": "msgpack"} {
		c, err := CodecByName(name)
		if err != nil || c.Name() != want {
			t.Fatalf("CodecByName(%q) = %v, %v", name, c, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

func TestCodecRejectsBadInput(t *testing.T) {
	for _, c := range []Codec{JSONCodec, MsgpackCodec} {
		if _, err := c.DecodeEnvelope(nil); err == nil {
			t.Fatalf("%s: empty frame accepted", c.Name())
		}
		if _, err := c.DecodeEnvelope([]byte{0xC1, 0x00}); err == nil {
			t.Fatalf("%s: garbage accepted", c.Name())
		}
		if _, err := c.Encode("", HelloMessage{}); err == nil {
			t.Fatalf("%s: empty type accepted", c.Name())
		}
		if _, err := DecodePayload[HelloMessage](c, Envelope{T: MsgHello}); err == nil {
			t.Fatalf("%s: empty payload accepted", c.Name())
		}
	}
}

func TestSetMessageRawValue(t *testing.T) {
	for _, c := range []Codec{JSONCodec, MsgpackCodec} {
		raw, err := rawValue(c, true)
		if err != nil {
			t.Fatalf("%s raw: %v", c.Name(), err)
		}
		b, err := c.Encode(MsgSet, SetMessage{Name: "fighter.2.thrusting", Value: raw})
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		env, err := c.DecodeEnvelope(b)
		if err != nil {
			t.Fatalf("%s envelope: %v", c.Name(), err)
		}
		m, err := DecodePayload[SetMessage](c, env)
		if err != nil {
			t.Fatalf("%s payload: %v", c.Name(), err)
		}
		var v bool
		if err := c.Unmarshal(m.Value, &v); err != nil || !v {
			t.Fatalf("%s: value %v, err %v", c.Name(), v, err)
		}
	}
}

// rawValue 以连接编码预先编码一个值
func rawValue(c Codec, v any) (RawValue, error) {
	b, err := c.Encode("v", v)
	if err != nil {
		return nil, err
	}
	env, err := c.DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	return RawValue(env.P), nil
}
