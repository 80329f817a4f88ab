package server

import (
	"sync/atomic"

	"spacewar/game"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount         int64 // 统计的 Tick 次数
	InputsAccepted    int64 // 被接受的输入数
	RateLimited       int64 // 因同帧限流被拒绝的输入数
	OldSeqIgnored     int64 // 因旧序列被忽略的输入数
	DropsSimulated    int64 // 因模拟丢包被丢弃的输入数
	DupsSimulated     int64 // 模拟重复投递的 RPC 数
	ChanFullDiscarded int64 // 因通道满被丢弃的消息数
	Malformed         int64 // 无法解码或类型未知的消息数
	RPCRejected       int64 // 被拒绝的 RPC 数
	VarRejected       int64 // 被拒绝的复制变量写入数
	SendDropped       int64 // 因发送队列满丢弃的出站帧数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncAccepted()          { atomic.AddInt64(&m.InputsAccepted, 1) }
func (m *RoomMetrics) IncRateLimited()       { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncOldSeqIgnored()     { atomic.AddInt64(&m.OldSeqIgnored, 1) }
func (m *RoomMetrics) IncDropsSimulated()    { atomic.AddInt64(&m.DropsSimulated, 1) }
func (m *RoomMetrics) IncDupsSimulated()     { atomic.AddInt64(&m.DupsSimulated, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncMalformed()         { atomic.AddInt64(&m.Malformed, 1) }
func (m *RoomMetrics) IncRPCRejected()       { atomic.AddInt64(&m.RPCRejected, 1) }
func (m *RoomMetrics) IncVarRejected()       { atomic.AddInt64(&m.VarRejected, 1) }
func (m *RoomMetrics) IncSendDropped()       { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":           tick,
		"inputs_accepted":      atomic.LoadInt64(&m.InputsAccepted),
		"rate_limited":         atomic.LoadInt64(&m.RateLimited),
		"old_seq_ignored":      atomic.LoadInt64(&m.OldSeqIgnored),
		"drops_simulated":      atomic.LoadInt64(&m.DropsSimulated),
		"dups_simulated":       atomic.LoadInt64(&m.DupsSimulated),
		"chan_full_discarded":  atomic.LoadInt64(&m.ChanFullDiscarded),
		"malformed":            atomic.LoadInt64(&m.Malformed),
		"rpc_rejected":         atomic.LoadInt64(&m.RPCRejected),
		"var_rejected":         atomic.LoadInt64(&m.VarRejected),
		"send_dropped":         atomic.LoadInt64(&m.SendDropped),
		"authority_violations": game.Violations(),
		"avg_tick_ms":          avgMs,
	}
}
