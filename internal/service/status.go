package service

import (
	"context"
	"errors"
	"time"

	"geek-hub/internal/errs"
	"geek-hub/internal/pattern"
	"geek-hub/internal/repository"
)

type StatusService struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	configs       *repository.APIConfigRepository
	patterns      *pattern.Store
}

type SystemStatus struct {
	// 数据统计
	TotalConversations int64 `json:"totalConversations"`
	TotalMessages      int64 `json:"totalMessages"`
	TotalConfigs       int64 `json:"totalConfigs"`
	// 缓存未建立时为 -1
	LoadedPatterns int `json:"loadedPatterns"`

	ActiveConfig string `json:"activeConfig,omitempty"`
	ActiveModel  string `json:"activeModel,omitempty"`

	// 定时任务信息
	NextPatternRefresh time.Time `json:"nextPatternRefresh"`
	NextIndexOptimize  time.Time `json:"nextIndexOptimize"`
}

func NewStatusService(
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	configs *repository.APIConfigRepository,
	patterns *pattern.Store,
) *StatusService {
	return &StatusService{conversations: conversations, messages: messages, configs: configs, patterns: patterns}
}

// GetSystemStatus 获取系统状态
func (s *StatusService) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{LoadedPatterns: s.patterns.Count()}

	var err error
	if status.TotalConversations, err = s.conversations.Count(ctx); err != nil {
		return nil, err
	}
	if status.TotalMessages, err = s.messages.Count(ctx); err != nil {
		return nil, err
	}
	if status.TotalConfigs, err = s.configs.Count(ctx); err != nil {
		return nil, err
	}

	active, err := s.configs.Active(ctx)
	var cfgErr *errs.ConfigError
	switch {
	case err == nil:
		status.ActiveConfig = active.Name
		status.ActiveModel = active.Model
	case !errors.As(err, &cfgErr):
		return nil, err
	}
	return status, nil
}
