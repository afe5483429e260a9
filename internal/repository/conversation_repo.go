package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
)

// ConversationRepository 会话数据访问
type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// List 按最近更新排序
func (r *ConversationRepository) List(ctx context.Context) ([]model.Conversation, error) {
	conversations := []model.Conversation{}
	if err := r.db.WithContext(ctx).Order("updated_at DESC, id DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id uint) (*model.Conversation, error) {
	var c model.Conversation
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("会话", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &c, nil
}

func (r *ConversationRepository) Create(ctx context.Context, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	c := &model.Conversation{Title: title}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}
	return c, nil
}

// Rename 更新标题并刷新更新时间
func (r *ConversationRepository) Rename(ctx context.Context, id uint, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errs.Validation("title", "标题不能为空")
	}
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).
		Updates(map[string]any{"title": title, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, fmt.Errorf("更新会话失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.NotFound("会话", id)
	}
	return r.Get(ctx, id)
}

// Touch 刷新更新时间
func (r *ConversationRepository) Touch(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("更新会话时间失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("会话", id)
	}
	return nil
}

// Delete 删除会话及其消息和全文索引
func (r *ConversationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM messages_fts WHERE docid IN (SELECT id FROM messages WHERE conversation_id = ?)`, id).Error; err != nil {
			return fmt.Errorf("删除全文索引失败: %w", err)
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("删除消息失败: %w", err)
		}
		res := tx.Delete(&model.Conversation{}, id)
		if res.Error != nil {
			return fmt.Errorf("删除会话失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.NotFound("会话", id)
		}
		return nil
	})
}

// Search 标题或消息内容匹配的会话
func (r *ConversationRepository) Search(ctx context.Context, q string) ([]model.Conversation, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return r.List(ctx)
	}

	conversations := []model.Conversation{}
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT c.* FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.title LIKE ?
		   OR m.content LIKE ?
		   OR m.id IN (SELECT docid FROM messages_fts WHERE messages_fts MATCH ?)
		ORDER BY c.updated_at DESC, c.id DESC
	`, likePattern(q), likePattern(q), ftsQuery(q)).Scan(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("搜索会话失败: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Conversation{}).Count(&n).Error
	return n, err
}
