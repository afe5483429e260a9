package model

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"index:idx_msg_conv_created,priority:1;not null" json:"conversationId"`
	Role           Role      `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Truncated      bool      `gorm:"not null;default:false" json:"truncated"` // 流中断时保存的不完整回复
	CreatedAt      time.Time `gorm:"index:idx_msg_conv_created,priority:2" json:"createdAt"`
}
