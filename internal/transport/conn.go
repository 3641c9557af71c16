// Package transport 封装 websocket 连接，对外提供面向消息的全双工抽象。
package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
)

// ErrClosed 连接已经关闭
var ErrClosed = errors.New("transport: connection closed")

// sendBuffer 发送通道的缓冲大小
const sendBuffer = 256

// Conn 包装 *websocket.Conn。
//
// gorilla/websocket 只允许一个并发读者和一个并发写者，而本代理存在
// 两个写方：转发循环会写入消息，拦截器也可能向同一连接注入合成命令。
// 因此读写都交给独立的 pump 协程，外部只通过通道与其交互。
type Conn struct {
	name string
	ws   *websocket.Conn
	log  logger.Logger

	in  chan []byte
	out chan []byte

	// done 在 Close 时关闭，通知所有 pump 退出
	done      chan struct{}
	closeOnce sync.Once

	// idle 在两个 pump 都退出后关闭
	idle  chan struct{}
	pumps sync.WaitGroup

	mu      sync.Mutex
	readErr error
}

// Wrap 包装一个已经建立的 websocket 连接并启动读写协程。
// name 用于日志输出，如 "devtools"、"web"。
func Wrap(name string, ws *websocket.Conn, l logger.Logger) *Conn {
	if l == nil {
		l = logger.NewNop()
	}
	c := &Conn{
		name: name,
		ws:   ws,
		log:  l,
		in:   make(chan []byte, sendBuffer),
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		idle: make(chan struct{}),
	}
	c.pumps.Add(2)
	go c.readPump()
	go c.writePump()
	go func() {
		c.pumps.Wait()
		close(c.idle)
	}()
	return c
}

// Dial 连接到指定的 websocket 地址
func Dial(rawURL, name string, l logger.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return Wrap(name, ws, l), nil
}

// Name 返回连接的名称
func (c *Conn) Name() string { return c.name }

// Receive 返回下一条收到的消息。连接关闭后返回关闭原因或 ErrClosed。
func (c *Conn) Receive() ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		// 关闭前已入队的消息仍然交付
		select {
		case msg := <-c.in:
			return msg, nil
		default:
		}
		return nil, c.closeReason()
	}
}

// Send 将消息排队等待发送。连接关闭后返回 ErrClosed。
func (c *Conn) Send(msg []byte) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close 关闭连接，可以安全地多次调用
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.log.Debug("关闭连接", "conn", c.name)
		close(c.done)
		c.ws.Close()
	})
}

// Wait 阻塞直到连接完全关闭（读写协程均已退出）
func (c *Conn) Wait() {
	<-c.idle
}

// readPump 从 websocket 读取消息写入 in 通道，读取失败时关闭整个连接
func (c *Conn) readPump() {
	defer c.pumps.Done()
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			c.setReadErr(err)
			c.Close()
			return
		}
		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump 将 out 通道中的消息写入 websocket
func (c *Conn) writePump() {
	defer c.pumps.Done()
	for {
		select {
		case msg := <-c.out:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("写入消息失败", "conn", c.name, "error", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) setReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

func (c *Conn) closeReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClosed
}

// IsNormalClose 判断错误是否属于预期内的连接关闭。
// 本端主动 Close 时底层读取会报 net.ErrClosed，同样算预期内。
func IsNormalClose(err error) bool {
	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	)
}
