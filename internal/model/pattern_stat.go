package model

import "time"

// PatternStat pattern 使用统计,每次获取 pattern 详情时累加
type PatternStat struct {
	PatternName string    `gorm:"primaryKey;size:255" json:"patternName"`
	UseCount    int64     `gorm:"not null;default:0" json:"useCount"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
}
