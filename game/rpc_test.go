package game

import "testing"

type recordingBroadcaster struct {
	calls []Call
}

func (r *recordingBroadcaster) BroadcastRPC(c Call) { r.calls = append(r.calls, c) }

func TestRPCRouterToServer(t *testing.T) {
	r := NewRPCRouter(ServerPeer)
	var got []Call
	r.Handle(RPCRequestFire, ToServer, func(c Call) { got = append(got, c) })

	if !r.Invoke(Call{Name: RPCRequestFire, Caller: 1}) {
		t.Fatalf("expected invoke to run")
	}
	if len(got) != 1 || got[0].Caller != 1 {
		t.Fatalf("handler should see the caller: %v", got)
	}
	if r.Invoke(Call{Name: "Nope", Caller: 1}) {
		t.Fatalf("unknown channel should be rejected")
	}
}

func TestRPCRouterNonAuthorityDoesNotExecute(t *testing.T) {
	r := NewRPCRouter(PeerID(0))
	ran := false
	r.Handle(RPCRequestRematch, ToServer, func(Call) { ran = true })
	if r.Invoke(Call{Name: RPCRequestRematch, Caller: 0}) || ran {
		t.Fatalf("server-only handler must not run on a client")
	}
}

func TestRPCRouterBroadcast(t *testing.T) {
	r := NewRPCRouter(ServerPeer)
	out := &recordingBroadcaster{}
	r.SetBroadcaster(out)
	local := 0
	r.Handle(RPCShowMenu, ToEveryone, func(Call) { local++ })

	if !r.Broadcast(Call{Name: RPCShowMenu, Caller: ServerPeer}) {
		t.Fatalf("server broadcast rejected")
	}
	if local != 1 || len(out.calls) != 1 {
		t.Fatalf("broadcast should run locally and forward: local=%d out=%d", local, len(out.calls))
	}

	// 客户端不能发起广播，即使经 Invoke 进入
	if r.Invoke(Call{Name: RPCShowMenu, Caller: 0}) {
		t.Fatalf("client-originated broadcast accepted")
	}
	if local != 1 || len(out.calls) != 1 {
		t.Fatalf("rejected broadcast had effects")
	}
	if r.Broadcast(Call{Name: RPCRequestFire, Caller: ServerPeer}) {
		t.Fatalf("unregistered broadcast accepted")
	}
}
