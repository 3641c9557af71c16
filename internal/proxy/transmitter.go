package proxy

import (
	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/internal/transport"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// Conn 转发循环需要的连接能力，由 transport.Conn 实现
type Conn interface {
	Receive() ([]byte, error)
	Send(msg []byte) error
	Close()
	Wait()
}

// InterceptFunc 表示转发时的处理器。
//
// 接收来源连接、连接的描述性信息，以及要处理的消息：
//   - 返回新的消息表示转发该消息
//   - 返回 nil 表示不转发
//
// 之所以传入来源连接，是因为拦截器可能需要向来源一端写回命令。
type InterceptFunc func(from Conn, info model.ConnectionInfo, msg []byte) []byte

// transmit 把 from 的消息逐条转发到 to，直到任意一端关闭。
//
// 无论因何退出都会关闭两端连接：CDP 会话半开毫无意义，一个方向
// 挂掉之后整个会话都应当拆除。
func transmit(from, to Conn, info model.ConnectionInfo, fn InterceptFunc, l logger.Logger) {
	defer from.Close()
	defer to.Close()

	for {
		msg, err := from.Receive()
		if err != nil {
			if transport.IsNormalClose(err) {
				l.Info("连接已关闭，转发结束", "conn", info.String())
			} else {
				l.Err(err, "转发意外中断", "conn", info.String())
			}
			return
		}

		l.Debug("转发消息", "conn", info.String(), "msg", string(msg))

		if fn != nil {
			msg = fn(from, info, msg)
		}
		if msg == nil {
			continue
		}
		if err := to.Send(msg); err != nil {
			l.Err(err, "发送消息失败", "conn", info.String())
			return
		}
	}
}
