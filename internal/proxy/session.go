package proxy

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Hosinoharu/SkipJSDebugger/internal/transport"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// runSession 负责一个目标的完整会话：连接 web 端、双向转发、清理资源。
//
// 会话不是一个长生命周期对象，它只存在于这次调用的栈上。无论转发
// 因何结束（包括连接 web 端失败），退出前都会注销目标并关闭两端。
func (s *Server) runSession(devtools *transport.Conn, target model.TargetID) {
	sid := model.SessionID(uuid.NewString())

	defer func() {
		devtools.Close()
		s.reg.Release(target)
		s.sendEvent(model.Event{Type: model.EventDetached, Session: sid, Target: target})
		s.log.Info("会话资源已清理", "target", string(target), "session", string(sid))
	}()

	webURL := s.upstreamURL(target)
	s.log.Info("连接 web 调试目标", "target", string(target), "url", webURL, "session", string(sid))

	web, err := transport.Dial(webURL, "web", s.log)
	if err != nil {
		// devtools 端交给 defer 关闭，devtools 会看到一个打不开的会话
		s.log.Err(err, "连接 web 端失败", "target", string(target))
		s.sendEvent(model.Event{Type: model.EventDialFailed, Session: sid, Target: target, Detail: err.Error()})
		return
	}
	defer web.Close()

	s.sendEvent(model.Event{Type: model.EventAttached, Session: sid, Target: target})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		info := model.ConnectionInfo{Session: sid, Target: target, Des: "web -> devtools"}
		transmit(web, devtools, info, func(from Conn, info model.ConnectionInfo, msg []byte) []byte {
			return s.policy.FromWeb(from, info, msg)
		}, s.log)
	}()
	go func() {
		defer wg.Done()
		info := model.ConnectionInfo{Session: sid, Target: target, Des: "devtools -> web"}
		transmit(devtools, web, info, func(from Conn, info model.ConnectionInfo, msg []byte) []byte {
			return s.policy.FromDevtools(from, info, msg)
		}, s.log)
	}()
	wg.Wait()

	// 两个转发循环都已退出，等连接把关闭流程走完
	devtools.Wait()
	web.Wait()
}
