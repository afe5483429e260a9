package handler

import (
	"github.com/gin-gonic/gin"

	"geek-hub/internal/model"
	"geek-hub/internal/repository"
)

// ===== API 配置相关 =====

func (h *Handler) ListConfigs(c *gin.Context) {
	configs, err := h.configs.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, configs)
}

func (h *Handler) ActiveConfig(c *gin.Context) {
	cfg, err := h.configs.Active(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, cfg)
}

func (h *Handler) CreateConfig(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Vendor   string `json:"vendor"`
		Model    string `json:"model"`
		APIKey   string `json:"apiKey"`
		BaseURL  string `json:"baseUrl"`
		IsActive bool   `json:"isActive"`
	}
	if !bind(c, &req) {
		return
	}
	cfg := &model.APIConfig{
		Name:     req.Name,
		Vendor:   req.Vendor,
		Model:    req.Model,
		APIKey:   req.APIKey,
		BaseURL:  req.BaseURL,
		IsActive: req.IsActive,
	}
	if err := h.configs.Create(c.Request.Context(), cfg); err != nil {
		fail(c, err)
		return
	}
	ok(c, cfg)
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	var patch repository.APIConfigPatch
	if !bind(c, &patch) {
		return
	}
	cfg, err := h.configs.Update(c.Request.Context(), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, cfg)
}

func (h *Handler) DeleteConfig(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	if err := h.configs.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) ActivateConfig(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	cfg, err := h.configs.Activate(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, cfg)
}

// ListModels 获取指定配置可用的模型
func (h *Handler) ListModels(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	cfg, err := h.configs.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	models, err := h.llm.ListModels(c.Request.Context(), cfg)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, models)
}

// TestConfig 测试指定配置的连通性
func (h *Handler) TestConfig(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	cfg, err := h.configs.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	reply, err := h.llm.TestConnection(c.Request.Context(), cfg)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"response": reply})
}
