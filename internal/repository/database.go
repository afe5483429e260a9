// Package repository 实现数据访问层
package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"geek-hub/internal/model"
)

// SQLite 连接参数: 外键级联、WAL、写事务立即加锁
const dsnParams = "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate"

// OpenDB 打开数据库,迁移表结构并建立全文索引
func OpenDB(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path+dsnParams), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.AutoMigrate(&model.APIConfig{}, &model.Conversation{}, &model.Message{}, &model.PatternStat{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 消息全文索引, docid 即 messages.id
	if err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts4(content)`).Error; err != nil {
		return nil, fmt.Errorf("创建全文索引失败: %w", err)
	}

	log.Printf("[DB] 数据库初始化完成: %s", path)
	return db, nil
}

// OptimizeSearchIndex 合并全文索引的 b-tree 段
func OptimizeSearchIndex(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Exec(`INSERT INTO messages_fts(messages_fts) VALUES('optimize')`).Error
}

// ftsQuery 把用户输入转成 FTS 短语查询,避免特殊字符被当作语法
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}

// likePattern 生成 LIKE 子串匹配参数
func likePattern(q string) string {
	return "%" + q + "%"
}
