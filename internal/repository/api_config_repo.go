package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/gorm"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
)

// APIConfigRepository API 配置数据访问
type APIConfigRepository struct {
	db *gorm.DB
	mu sync.Mutex // 串行化激活操作
}

func NewAPIConfigRepository(db *gorm.DB) *APIConfigRepository {
	return &APIConfigRepository{db: db}
}

// APIConfigPatch 部分更新,nil 字段保持不变
type APIConfigPatch struct {
	Name    *string `json:"name"`
	Vendor  *string `json:"vendor"`
	Model   *string `json:"model"`
	APIKey  *string `json:"apiKey"`
	BaseURL *string `json:"baseUrl"`
}

func (r *APIConfigRepository) List(ctx context.Context) ([]model.APIConfig, error) {
	configs := []model.APIConfig{}
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("查询配置列表失败: %w", err)
	}
	return configs, nil
}

func (r *APIConfigRepository) Get(ctx context.Context, id uint) (*model.APIConfig, error) {
	var cfg model.APIConfig
	err := r.db.WithContext(ctx).First(&cfg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("配置", id)
	}
	if err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}
	return &cfg, nil
}

// Active 获取当前激活的配置
func (r *APIConfigRepository) Active(ctx context.Context) (*model.APIConfig, error) {
	var cfg model.APIConfig
	err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.ConfigError{}
	}
	if err != nil {
		return nil, fmt.Errorf("查询激活配置失败: %w", err)
	}
	return &cfg, nil
}

// Create 新建配置,若标记为激活则同时停用其他配置
func (r *APIConfigRepository) Create(ctx context.Context, cfg *model.APIConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.IsActive {
			if err := tx.Model(&model.APIConfig{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(cfg).Error; err != nil {
			return fmt.Errorf("创建配置失败: %w", err)
		}
		return nil
	})
}

func (r *APIConfigRepository) Update(ctx context.Context, id uint, patch APIConfigPatch) (*model.APIConfig, error) {
	updates := map[string]any{}
	set := func(col string, v *string, required bool) error {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		if required && s == "" {
			return errs.Validation(col, "不能为空")
		}
		updates[col] = s
		return nil
	}
	for _, f := range []struct {
		col      string
		v        *string
		required bool
	}{
		{"name", patch.Name, true},
		{"vendor", patch.Vendor, true},
		{"model", patch.Model, true},
		{"api_key", patch.APIKey, true},
		{"base_url", patch.BaseURL, false},
	} {
		if err := set(f.col, f.v, f.required); err != nil {
			return nil, err
		}
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.APIConfig{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("更新配置失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, errs.NotFound("配置", id)
		}
	}
	return r.Get(ctx, id)
}

func (r *APIConfigRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.APIConfig{}, id)
	if res.Error != nil {
		return fmt.Errorf("删除配置失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("配置", id)
	}
	return nil
}

// Activate 激活指定配置并停用其余配置,两步在同一事务内完成
func (r *APIConfigRepository) Activate(ctx context.Context, id uint) (*model.APIConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.APIConfig{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return errs.NotFound("配置", id)
		}
		if err := tx.Model(&model.APIConfig{}).Where("id <> ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&model.APIConfig{}).Where("id = ?", id).Update("is_active", true).Error
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *APIConfigRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.APIConfig{}).Count(&n).Error
	return n, err
}

func validateConfig(cfg *model.APIConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	switch {
	case cfg.Name == "":
		return errs.Validation("name", "不能为空")
	case cfg.Model == "":
		return errs.Validation("model", "不能为空")
	case cfg.APIKey == "":
		return errs.Validation("apiKey", "不能为空")
	}
	if cfg.Vendor == "" {
		cfg.Vendor = "openai"
	}
	return nil
}
