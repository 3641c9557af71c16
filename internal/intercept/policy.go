// Package intercept 实现两个转发方向上的消息拦截策略。
//
// devtools -> web 方向只做诊断文案改写；web -> devtools 方向负责
// 吞掉自定义 debugger 语句触发的 Debugger.paused 事件，并向 web 端
// 注入合成命令让页面继续执行，使调试者完全感知不到这次暂停。
package intercept

import (
	"bytes"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// Sender 拦截器向消息来源一端写回合成命令所需的最小能力
type Sender interface {
	Send(msg []byte) error
}

const (
	methodPaused   = "Debugger.paused"
	overlayMessage = "Overlay.setPausedInDebuggerMessage"
	pausedBanner   = "Paused in debugger"

	// 服务端注入的命令统一使用保留 id 0，web 端的应答会在回程被丢弃
	stepOutCommand = `{"id":0,"method":"Debugger.stepOut","params":{}}`
	resumeCommand  = `{"id":0,"method":"Debugger.resume","params":{"terminateOnResume":false}}`
)

// Policy 按方向拆分的拦截策略
type Policy struct {
	// marker 自定义 debugger 函数的名称
	marker string
	// attribution 改写诊断文案时追加的署名
	attribution string
	events      chan<- model.Event
	log         logger.Logger
}

// New 创建拦截策略。events 可以为 nil，表示不需要事件记录。
func New(marker, attribution string, events chan<- model.Event, l logger.Logger) *Policy {
	if l == nil {
		l = logger.NewNop()
	}
	return &Policy{
		marker:      marker,
		attribution: attribution,
		events:      events,
		log:         l,
	}
}

// FromDevtools 处理 devtools 发往 web 的消息，只改写、从不丢弃。
// 命中 Overlay.setPausedInDebuggerMessage 时，把第一处暂停提示文案
// 替换为带署名的版本。
func (p *Policy) FromDevtools(from Sender, info model.ConnectionInfo, msg []byte) []byte {
	if !bytes.Contains(msg, []byte(overlayMessage)) {
		return msg
	}
	if !bytes.Contains(msg, []byte(pausedBanner)) {
		return msg
	}
	rewritten := bytes.Replace(msg,
		[]byte(pausedBanner),
		[]byte(pausedBanner+" - Surprise "+p.attribution), 1)
	p.log.Debug("改写暂停提示文案", "conn", info.String())
	p.sendEvent(model.Event{
		Type:      model.EventRewritten,
		Session:   info.Session,
		Target:    info.Target,
		Direction: info.Des,
	})
	return rewritten
}

// FromWeb 处理 web 发往 devtools 的消息。返回 nil 表示不转发。
func (p *Policy) FromWeb(from Sender, info model.ConnectionInfo, msg []byte) []byte {
	// id 为 0 的消息都是服务端自己注入命令的应答，直接丢弃
	if id := gjson.GetBytes(msg, "id"); id.Exists() && id.Type == gjson.Number && id.Int() == 0 {
		p.log.Debug("丢弃服务端命令的应答", "conn", info.String())
		return nil
	}

	// 字段可能缺失，缺什么都按原样转发
	if gjson.GetBytes(msg, "method").String() != methodPaused {
		return msg
	}
	params := gjson.GetBytes(msg, "params")
	if !params.IsObject() {
		return msg
	}

	if p.processPaused(from, info, params) {
		p.log.Debug("已拦截 Debugger.paused 事件", "conn", info.String())
		p.sendEvent(model.Event{
			Type:      model.EventSuppressed,
			Session:   info.Session,
			Target:    info.Target,
			Direction: info.Des,
			Payload:   msg,
		})
		return nil
	}
	return msg
}

// processPaused 处理 Debugger.paused 的参数。
// 返回 true 表示服务端已经做出了修正动作，对应消息不再转发。
func (p *Policy) processPaused(from Sender, info model.ConnectionInfo, params gjson.Result) bool {
	// reason 为 other 且没有命中任何断点，目前只有 debugger 语句会这样
	isCustomPause := params.Get("reason").String() == "other" &&
		len(params.Get("hitBreakpoints").Array()) == 0
	if !isCustomPause {
		return false
	}

	frame := params.Get("callFrames.0.functionName")
	if !frame.Exists() {
		// 调用栈为空时无从判断来源，按真实暂停处理
		p.log.Warn("Debugger.paused 缺少调用栈，按真实暂停转发", "conn", info.String())
		return false
	}

	if frame.String() == p.marker {
		// 暂停发生在自定义 debugger 函数内部，stepOut 让调用者帧成为当前帧
		p.log.Warn("断点位于自定义 debugger 函数内", "conn", info.String(), "marker", p.marker)
		return p.inject(from, info, "Debugger.stepOut", stepOutCommand)
	}
	return p.inject(from, info, "Debugger.resume", resumeCommand)
}

// inject 向 web 端写回合成命令，发送失败时放弃拦截、照常转发
func (p *Policy) inject(from Sender, info model.ConnectionInfo, method, command string) bool {
	if err := from.Send([]byte(command)); err != nil {
		p.log.Err(err, "注入合成命令失败", "conn", info.String(), "method", method)
		return false
	}
	p.log.Debug("注入合成命令", "conn", info.String(), "method", method)
	p.sendEvent(model.Event{
		Type:      model.EventInjected,
		Session:   info.Session,
		Target:    info.Target,
		Direction: info.Des,
		Detail:    method,
	})
	return true
}

func (p *Policy) sendEvent(evt model.Event) {
	if p.events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case p.events <- evt:
	default:
	}
}
