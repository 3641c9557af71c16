// Package config 定义配置文件结构与默认值。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Listen   Listen   `yaml:"listen"`
	Upstream Upstream `yaml:"upstream"`
	Debugger Debugger `yaml:"debugger"`
	Sqlite   Sqlite   `yaml:"sqlite"`
	Log      Log      `yaml:"log"`
}

// Listen devtools 端的监听地址
type Listen struct {
	Host string `yaml:"host"`
	Port uint   `yaml:"port"`
}

// Upstream web 端（浏览器远程调试）的地址
type Upstream struct {
	// Template websocket 调试地址模板，{target} 会被替换为目标 id
	Template string `yaml:"template"`
}

// Debugger 自定义 debugger 相关配置
type Debugger struct {
	// Marker 自定义 debugger 函数的名称
	Marker string `yaml:"marker"`
	// Attribution 改写暂停提示文案时追加的署名
	Attribution string `yaml:"attribution"`
}

// Sqlite 会话历史入库配置，Dsn 为空表示关闭
type Sqlite struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

// Log 日志配置
type Log struct {
	Level        string   `yaml:"level"`
	ConsoleLevel string   `yaml:"consoleLevel"`
	Writer       []string `yaml:"writer"`
	File         string   `yaml:"file"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Listen: Listen{
			Host: "127.0.0.1",
			Port: 9221,
		},
		Upstream: Upstream{
			Template: "ws://127.0.0.1:9222/devtools/page/{target}",
		},
		Debugger: Debugger{
			Marker:      "lovedebug",
			Attribution: "From 52pj",
		},
		Sqlite: Sqlite{
			Dsn:    "",
			Prefix: "skipjs_",
		},
		Log: Log{
			Level:        "debug",
			ConsoleLevel: "info",
			Writer:       []string{"console", "file"},
			File:         "server.log",
		},
	}
}

// Load 读取 yaml 配置文件，未出现的字段保持默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件: %w", err)
	}
	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件: %w", err)
	}
	return cfg, nil
}

// ListenAddr 返回监听地址
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}
