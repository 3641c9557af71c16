// Package registry 记录当前已被调试的 target，避免多个 devtools 调试同一个 web 端。
package registry

import (
	"sync"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// Registry 全局的已连接目标注册表，所有会话共享这一份状态
type Registry struct {
	mu      sync.Mutex
	targets map[model.TargetID]struct{}
	log     logger.Logger
}

// New 创建注册表
func New(l logger.Logger) *Registry {
	if l == nil {
		l = logger.NewNop()
	}
	return &Registry{
		targets: make(map[model.TargetID]struct{}),
		log:     l,
	}
}

// TryAcquire 原子地检查并登记目标。目标已被占用时返回 false 且不做任何修改。
func (r *Registry) TryAcquire(id model.TargetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; ok {
		return false
	}
	r.targets[id] = struct{}{}
	r.log.Debug("登记调试目标", "target", string(id))
	return true
}

// Release 注销目标，目标不存在时也不报错
func (r *Registry) Release(id model.TargetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.targets, id)
	r.log.Debug("注销调试目标", "target", string(id))
}

// Len 返回当前活动目标数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// Clear 清空所有登记，仅在进程退出时使用
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.targets) > 0 {
		r.log.Warn("强制清空目标注册表", "count", len(r.targets))
	}
	r.targets = make(map[model.TargetID]struct{})
}
