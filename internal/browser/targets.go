// Package browser 查询浏览器远程调试接口暴露的目标列表。
package browser

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mafredri/cdp/devtool"

	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// List 返回浏览器当前所有可调试的页面目标
func List(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	dt := devtool.New(devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询目标列表: %w", err)
	}

	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, model.TargetInfo{
			ID:                   model.TargetID(t.ID),
			Type:                 string(t.Type),
			Title:                t.Title,
			URL:                  t.URL,
			WebSocketDebuggerURL: t.WebSocketDebuggerURL,
		})
	}
	return out, nil
}

// HTTPAddr 从 websocket 调试地址模板推导出浏览器的 http 调试入口，
// 如 ws://127.0.0.1:9222/devtools/page/{target} -> http://127.0.0.1:9222
func HTTPAddr(template string) (string, error) {
	u, err := url.Parse(template)
	if err != nil {
		return "", fmt.Errorf("解析地址模板: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("无法识别的协议: %s", u.Scheme)
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String(), nil
}
