// SkipJSDebugger - Chrome Devtools Protocol 中间人代理，
// 转发 CDP 请求与响应，同时拦截自定义 debugger 触发的暂停事件。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Hosinoharu/SkipJSDebugger/internal/browser"
	"github.com/Hosinoharu/SkipJSDebugger/internal/config"
	"github.com/Hosinoharu/SkipJSDebugger/internal/intercept"
	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/internal/proxy"
	"github.com/Hosinoharu/SkipJSDebugger/internal/registry"
	"github.com/Hosinoharu/SkipJSDebugger/internal/storage"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

// 程序信息
var (
	author  = "From 52pj"
	version = "0.1.0"
	license = "MIT"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "skipjsdebugger: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 子命令先于 flag 解析
	if len(args) > 0 {
		switch args[0] {
		case "targets":
			return runTargets(args[1:])
		case "version":
			fmt.Printf("skipjsdebugger %s\n", version)
			return nil
		}
	}

	fs := flag.NewFlagSet("skipjsdebugger", flag.ContinueOnError)

	cfgPath := fs.StringP("config", "c", "", "配置文件路径")
	port := fs.UintP("cdp", "p", 0, "CDP Server 监听端口")
	upstream := fs.StringP("upstream", "u", "", "web 端调试地址模板，{target} 为目标 id 占位符")
	marker := fs.StringP("debugger", "d", "", "自定义 debugger 函数的名称")
	attribution := fs.String("attribution", "", "改写暂停提示文案时追加的署名")
	dsn := fs.String("db", "", "sqlite 数据库路径，保存会话历史（默认关闭）")
	logLevel := fs.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFile := fs.String("log-file", "", "日志文件路径，为空表示不写文件")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// 先加载配置文件，命令行参数再覆盖其中的值
	cfg := config.NewConfig()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if fs.Changed("cdp") {
		cfg.Listen.Port = *port
	}
	if fs.Changed("upstream") {
		cfg.Upstream.Template = *upstream
	}
	if fs.Changed("debugger") {
		cfg.Debugger.Marker = *marker
	}
	if fs.Changed("attribution") {
		cfg.Debugger.Attribution = *attribution
	}
	if fs.Changed("db") {
		cfg.Sqlite.Dsn = *dsn
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-file") {
		cfg.Log.File = *logFile
		if *logFile == "" {
			cfg.Log.Writer = []string{"console"}
		}
	}

	log := logger.New(logger.Options{
		Level:        cfg.Log.Level,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		Writer:       cfg.Log.Writer,
		File:         cfg.Log.File,
	})

	fmt.Printf(`
Author: %s
Version: %s
License: %s
======================================
CDP Server is running on: %s
Web debug target template: %s
My debugger is: %s
======================================
`, author, version, license, cfg.ListenAddr(), cfg.Upstream.Template, cfg.Debugger.Marker)

	// 事件通道：转发热路径非阻塞写入，记录器慢慢消费
	events := make(chan model.Event, 256)

	var store *storage.Store
	var recorder *storage.Recorder
	if cfg.Sqlite.Dsn != "" {
		var err error
		store, err = storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, log)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = storage.NewRecorder(store, events, log)
		go recorder.Run()
	}

	reg := registry.New(log)
	pol := intercept.New(cfg.Debugger.Marker, cfg.Debugger.Attribution, events, log)
	srv := proxy.NewServer(proxy.Options{
		Upstream: cfg.Upstream.Template,
		Policy:   pol,
		Registry: reg,
		Events:   events,
		Logger:   log,
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr(), Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("收到退出信号，开始关闭")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Err(err, "关闭 HTTP 服务失败")
		}
	}()

	err := httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	// 等 http.Server 送走进行中的请求，再拆掉它不管的 websocket 会话。
	// 会话全部退出后关闭事件通道才是安全的，清理事件不会写到已关闭的通道上。
	stop()
	<-shutdownDone
	srv.Shutdown()
	reg.Clear()
	close(events)
	if recorder != nil {
		<-recorder.Done()
	}
	log.Info("CDP Server 已停止")
	return err
}

// runTargets 列出浏览器当前可调试的页面目标
func runTargets(args []string) error {
	fs := flag.NewFlagSet("targets", flag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "配置文件路径")
	upstream := fs.StringP("upstream", "u", "", "web 端调试地址模板或 http 入口")
	if err := fs.Parse(args); err != nil {
		return err
	}

	template, err := resolveTemplate(*cfgPath, *upstream)
	if err != nil {
		return err
	}
	addr, err := browser.HTTPAddr(template)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	targets, err := browser.List(ctx, addr)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("没有可调试的页面目标")
		return nil
	}
	for _, t := range targets {
		fmt.Printf("%-36s %s\n%-36s %s\n\n", string(t.ID), t.Title, "", t.URL)
	}
	return nil
}

// resolveTemplate 与主命令同样的优先级：命令行参数 > 配置文件 > 默认值
func resolveTemplate(cfgPath, override string) (string, error) {
	cfg := config.NewConfig()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return "", err
		}
		cfg = loaded
	}
	if override != "" {
		return override, nil
	}
	return cfg.Upstream.Template, nil
}
