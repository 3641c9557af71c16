// Package storage 把会话历史与拦截事件持久化到 sqlite。
package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
)

// SessionRecord 一次调试会话的汇总记录
type SessionRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"size:64;uniqueIndex"`
	Target     string `gorm:"size:255;index"`
	StartedAt  int64
	EndedAt    int64
	Suppressed int64
	Injected   int64
	Rewritten  int64
}

// EventRecord 会话期间的单条事件
type EventRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;index"`
	Target    string `gorm:"size:255;index"`
	Type      string `gorm:"size:32;index"`
	Direction string `gorm:"size:32"`
	Detail    string `gorm:"size:255"`
	// Payload 裁剪后的消息采样
	Payload   string
	Timestamp int64 `gorm:"index"`
}

// Store sqlite 存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开数据库并完成建表
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("迁移表结构: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession 登记一次新会话
func (s *Store) CreateSession(rec *SessionRecord) error {
	return s.db.Create(rec).Error
}

// FinishSession 补记会话的结束时间
func (s *Store) FinishSession(sessionID string, endedAt int64) error {
	return s.db.Model(&SessionRecord{}).
		Where("session_id = ?", sessionID).
		Update("ended_at", endedAt).Error
}

// BumpCounter 累加会话上的某个计数列
func (s *Store) BumpCounter(sessionID, column string) error {
	return s.db.Model(&SessionRecord{}).
		Where("session_id = ?", sessionID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// AppendEvent 追加一条事件记录
func (s *Store) AppendEvent(rec *EventRecord) error {
	return s.db.Create(rec).Error
}

// Sessions 按开始时间倒序返回最近的会话记录
func (s *Store) Sessions(limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	err := s.db.Order("started_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// Events 返回一次会话内的全部事件
func (s *Store) Events(sessionID string) ([]EventRecord, error) {
	var out []EventRecord
	err := s.db.Where("session_id = ?", sessionID).
		Order("timestamp asc").Find(&out).Error
	return out, err
}
