package storage

import (
	"github.com/tidwall/sjson"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// maxPayload 入库消息采样的最大长度
const maxPayload = 2048

// Recorder 消费事件通道并写入存储。
// 事件由转发热路径通过非阻塞发送产生，入库的快慢不影响转发。
type Recorder struct {
	store  *Store
	events <-chan model.Event
	done   chan struct{}
	log    logger.Logger
}

// NewRecorder 创建记录器
func NewRecorder(store *Store, events <-chan model.Event, l logger.Logger) *Recorder {
	if l == nil {
		l = logger.NewNop()
	}
	return &Recorder{
		store:  store,
		events: events,
		done:   make(chan struct{}),
		log:    l,
	}
}

// Run 持续消费事件直到通道被关闭
func (r *Recorder) Run() {
	defer close(r.done)
	for evt := range r.events {
		r.handle(evt)
	}
}

// Done 返回在 Run 退出时关闭的通道
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) handle(evt model.Event) {
	switch evt.Type {
	case model.EventAttached:
		err := r.store.CreateSession(&SessionRecord{
			SessionID: string(evt.Session),
			Target:    string(evt.Target),
			StartedAt: evt.Timestamp,
		})
		if err != nil {
			r.log.Err(err, "登记会话失败", "session", string(evt.Session))
			return
		}
	case model.EventDetached:
		if err := r.store.FinishSession(string(evt.Session), evt.Timestamp); err != nil {
			r.log.Err(err, "补记会话结束时间失败", "session", string(evt.Session))
		}
		return
	case model.EventSuppressed:
		r.bump(evt, "suppressed")
	case model.EventInjected:
		r.bump(evt, "injected")
	case model.EventRewritten:
		r.bump(evt, "rewritten")
	}

	err := r.store.AppendEvent(&EventRecord{
		SessionID: string(evt.Session),
		Target:    string(evt.Target),
		Type:      evt.Type,
		Direction: evt.Direction,
		Detail:    evt.Detail,
		Payload:   clipPayload(evt.Payload),
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		r.log.Err(err, "写入事件失败", "type", evt.Type)
	}
}

func (r *Recorder) bump(evt model.Event, column string) {
	if evt.Session == "" {
		return
	}
	if err := r.store.BumpCounter(string(evt.Session), column); err != nil {
		r.log.Err(err, "更新会话计数失败", "session", string(evt.Session), "column", column)
	}
}

// clipPayload 裁剪消息采样：去掉体积最大的调用栈字段，再限制总长度
func clipPayload(msg []byte) string {
	if len(msg) == 0 {
		return ""
	}
	out := msg
	if cleaned, err := sjson.DeleteBytes(out, "params.callFrames"); err == nil {
		out = cleaned
	}
	if len(out) > maxPayload {
		out = out[:maxPayload]
	}
	return string(out)
}
