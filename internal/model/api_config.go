package model

import "time"

// APIConfig 上游 AI 接口配置,同一时刻至多一条处于激活状态
type APIConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Vendor    string    `gorm:"size:50;not null;default:openai" json:"vendor"`
	Model     string    `gorm:"size:100;not null" json:"model"`
	APIKey    string    `gorm:"size:500;not null" json:"apiKey"`
	BaseURL   string    `gorm:"size:500" json:"baseUrl"`
	IsActive  bool      `gorm:"not null;default:false;index" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
