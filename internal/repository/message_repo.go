package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"geek-hub/internal/model"
)

// MessageRepository 消息数据访问,写入时同步全文索引
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByConversation 按创建时间升序,同一时间按 id
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uint) ([]model.Message, error) {
	messages := []model.Message{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return messages, nil
}

// Create 写入消息、全文索引并刷新会话更新时间
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("保存消息失败: %w", err)
		}
		if err := tx.Exec(`INSERT INTO messages_fts(docid, content) VALUES (?, ?)`, msg.ID, msg.Content).Error; err != nil {
			return fmt.Errorf("写入全文索引失败: %w", err)
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// MessageHit 全文检索命中
type MessageHit struct {
	model.Message
	ConversationTitle string `json:"conversationTitle"`
}

// SearchContent 全文检索消息内容
func (r *MessageRepository) SearchContent(ctx context.Context, q string, limit int) ([]MessageHit, error) {
	hits := []MessageHit{}
	q = strings.TrimSpace(q)
	if q == "" {
		return hits, nil
	}
	if limit <= 0 {
		limit = 50
	}
	// simple 分词器把连续的中日韩字符当作一个词,这类查询改用子串匹配
	where, arg := `m.id IN (SELECT docid FROM messages_fts WHERE messages_fts MATCH ?)`, ftsQuery(q)
	if hasCJK(q) {
		where, arg = `m.content LIKE ?`, likePattern(q)
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT m.*, c.title AS conversation_title FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE `+where+`
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?
	`, arg, limit).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("检索消息失败: %w", err)
	}
	return hits, nil
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).Count(&n).Error
	return n, err
}
