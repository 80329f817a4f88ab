package game

import (
	"fmt"
	"sync/atomic"
)

// PeerID 连接标识：0、1 为玩家席位，ServerPeer 为服务端自身
type PeerID int

// ServerPeer 服务端（权威端）的标识
const ServerPeer PeerID = -1

func (p PeerID) String() string {
	if p == ServerPeer {
		return "server"
	}
	return fmt.Sprintf("peer-%d", int(p))
}

// Authority 描述一份共享状态唯一允许写入的一方
type Authority struct {
	owner PeerID
}

// ServerAuthority 由服务端写入
func ServerAuthority() Authority { return Authority{owner: ServerPeer} }

// OwnerAuthority 由指定连接写入（例如 fighter 的推进状态）
func OwnerAuthority(p PeerID) Authority { return Authority{owner: p} }

func (a Authority) Owner() PeerID { return a.owner }

func (a Authority) Allows(p PeerID) bool { return p == a.owner }

func (a Authority) String() string {
	if a.owner == ServerPeer {
		return "server"
	}
	return "owner:" + a.owner.String()
}

var violations atomic.Int64

// Violations 返回进程内累计被拒绝的越权操作次数
func Violations() int64 { return violations.Load() }

// guard 是所有会修改共享状态的入口统一使用的权限检查：
// 越权调用只记录日志并拒绝，不会返回致命错误
func guard(a Authority, caller PeerID, op string) bool {
	if a.Allows(caller) {
		return true
	}
	violations.Add(1)
	logger.Warnw("authority violation, operation rejected", "op", op, "caller", caller, "authority", a)
	return false
}
