package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geek-hub/internal/model"
)

type PatternStatRepository struct {
	db *gorm.DB
}

func NewPatternStatRepository(db *gorm.DB) *PatternStatRepository {
	return &PatternStatRepository{db: db}
}

// Record 使用次数加一,不存在则插入
func (r *PatternStatRepository) Record(ctx context.Context, name string) error {
	now := time.Now()
	stat := model.PatternStat{PatternName: name, UseCount: 1, LastUsedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pattern_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"use_count":    gorm.Expr("use_count + 1"),
			"last_used_at": now,
		}),
	}).Create(&stat).Error
	if err != nil {
		return fmt.Errorf("记录 pattern 使用失败: %w", err)
	}
	return nil
}

// Popular 按使用次数取前 limit 个
func (r *PatternStatRepository) Popular(ctx context.Context, limit int) ([]model.PatternStat, error) {
	if limit <= 0 {
		limit = 10
	}
	stats := []model.PatternStat{}
	err := r.db.WithContext(ctx).
		Order("use_count DESC, last_used_at DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("查询热门 pattern 失败: %w", err)
	}
	return stats, nil
}
