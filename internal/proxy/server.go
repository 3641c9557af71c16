// Package proxy 实现 devtools 与 web 之间的中间人转发会话。
package proxy

import (
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hosinoharu/SkipJSDebugger/internal/intercept"
	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/internal/registry"
	"github.com/Hosinoharu/SkipJSDebugger/internal/transport"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// Server 接收 devtools 的 websocket 连接，并为每个目标建立一个转发会话
type Server struct {
	upstream string
	policy   *intercept.Policy
	reg      *registry.Registry
	events   chan<- model.Event
	log      logger.Logger
	upgrader websocket.Upgrader

	// 活动会话的 devtools 端连接，Shutdown 时逐个关闭
	mu       sync.Mutex
	closed   bool
	conns    map[*transport.Conn]struct{}
	sessions sync.WaitGroup
}

// Options Server 的配置选项
type Options struct {
	// Upstream web 端调试地址模板，{target} 会被替换为目标 id
	Upstream string
	Policy   *intercept.Policy
	Registry *registry.Registry
	// Events 可以为 nil，表示不需要事件记录
	Events chan<- model.Event
	Logger logger.Logger
}

// NewServer 创建转发服务
func NewServer(opt Options) *Server {
	l := opt.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{
		upstream: opt.Upstream,
		policy:   opt.Policy,
		reg:      opt.Registry,
		events:   opt.Events,
		log:      l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*transport.Conn]struct{}),
	}
}

// ServeHTTP 处理 devtools 的连接请求，请求路径的最后一段即目标 id
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := model.TargetID(path.Base(r.URL.Path))
	if target == "." || target == "/" {
		s.log.Warn("请求路径中没有目标 id", "path", r.URL.Path)
		return
	}
	s.log.Info("=> devtools 请求调试目标", "target", string(target))

	// 重复的连接直接拒绝，而不是断开旧的那一个。
	// 不升级握手、也不回应答，让 devtools 自己超时放弃。
	if !s.reg.TryAcquire(target) {
		s.log.Warn("目标已被调试，拒绝本次连接", "target", string(target))
		s.sendEvent(model.Event{Type: model.EventRefused, Target: target})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.reg.Release(target)
		s.log.Err(err, "升级 websocket 失败", "target", string(target))
		return
	}

	conn := transport.Wrap("devtools", ws, s.log)
	if !s.addConn(conn) {
		// Shutdown 已经开始，不再接受新会话
		conn.Close()
		s.reg.Release(target)
		return
	}
	go func() {
		defer s.sessions.Done()
		defer s.removeConn(conn)
		s.runSession(conn, target)
	}()
}

// Shutdown 关闭所有活动会话并等待其退出。
//
// http.Server 的 Shutdown 不会处理升级后的 websocket 连接，必须在
// 这里收尾。返回之后不再有会话产生事件，关闭事件通道才是安全的。
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.sessions.Wait()
}

// addConn 登记会话连接并计入等待组，Shutdown 开始后返回 false。
// 登记与 closed 判定在同一把锁内完成，保证 Shutdown 不会漏等新会话。
func (s *Server) addConn(c *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.sessions.Add(1)
	return true
}

func (s *Server) removeConn(c *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// upstreamURL 根据模板构造 web 端的调试地址
func (s *Server) upstreamURL(target model.TargetID) string {
	if strings.Contains(s.upstream, "{target}") {
		return strings.ReplaceAll(s.upstream, "{target}", string(target))
	}
	return strings.TrimSuffix(s.upstream, "/") + "/" + string(target)
}

// sendEvent 把事件送入通道，记录器来不及消费时直接丢弃
func (s *Server) sendEvent(evt model.Event) {
	if s.events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case s.events <- evt:
	default:
	}
}
