package model

import "fmt"

type SessionID string
type TargetID string

// ConnectionInfo 描述一条转发方向的上下文信息，创建后不再修改，仅用于日志输出
type ConnectionInfo struct {
	Session SessionID `json:"session"`
	Target  TargetID  `json:"target"`
	// Des 方向的描述性信息，如 "web -> devtools"
	Des string `json:"des"`
}

// String 返回用于日志前缀的描述，如 "[page-1] web -> devtools"
func (c ConnectionInfo) String() string {
	return fmt.Sprintf("[%s] %s", c.Target, c.Des)
}

// 会话生命周期中产生的事件类型
const (
	EventAttached   = "attached"    // devtools 成功附加到目标
	EventRefused    = "refused"     // 重复附加被拒绝
	EventDialFailed = "dial_failed" // 连接 web 端失败
	EventRewritten  = "rewritten"   // 诊断消息被改写
	EventSuppressed = "suppressed"  // Debugger.paused 被拦截
	EventInjected   = "injected"    // 服务端注入了合成命令
	EventDetached   = "detached"    // 会话结束
)

// Event 会话事件，通过非阻塞通道送入记录器
type Event struct {
	Type      string    `json:"type"`
	Session   SessionID `json:"session"`
	Target    TargetID  `json:"target"`
	Direction string    `json:"direction"`
	Detail    string    `json:"detail"`
	// Payload 可选的消息采样，入库前会被裁剪
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// TargetInfo 浏览器暴露的可调试目标信息
type TargetInfo struct {
	ID                   TargetID `json:"id"`
	Type                 string   `json:"type"`
	Title                string   `json:"title"`
	URL                  string   `json:"url"`
	WebSocketDebuggerURL string   `json:"webSocketDebuggerUrl"`
}
