package server

import (
	"github.com/google/uuid"

	"spacewar/game"
)

// Sender 连接写端；ClientConn 与测试里的假连接都实现它
type Sender interface {
	// Enqueue 非阻塞写入发送队列，队列满时丢弃并返回 false
	Enqueue(frameType int, b []byte) bool
	Close()
}

// Client 房间内的一个连接。占座的连接对应会话中的一个玩家，其余为观战
type Client struct {
	ID    string
	Name  string // 连接时请求的名字，过滤前
	Codec Codec
	Conn  Sender

	peer    game.PeerID
	seated  bool
	player  *game.Player
	lastSeq int64
	inputs  int // 当前 tick 已处理的输入数
}

func NewClient(name string, codec Codec, conn Sender) *Client {
	if codec == nil {
		codec = JSONCodec
	}
	return &Client{ID: uuid.NewString(), Name: name, Codec: codec, Conn: conn, peer: game.ServerPeer}
}

func (c *Client) Peer() game.PeerID    { return c.peer }
func (c *Client) Seated() bool         { return c.seated }
func (c *Client) Player() *game.Player { return c.player }

// send 按连接的编码发送一条消息
func (c *Client) send(t string, payload any) bool {
	b, err := c.Codec.Encode(t, payload)
	if err != nil {
		Log.Errorw("encode message failed", "client", c.ID, "type", t, "err", err)
		return false
	}
	return c.Conn.Enqueue(c.Codec.FrameType(), b)
}
