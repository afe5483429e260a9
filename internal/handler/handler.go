package handler

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"geek-hub/config"
	"geek-hub/internal/errs"
	"geek-hub/internal/pattern"
	"geek-hub/internal/repository"
	"geek-hub/internal/service"
)

type Handler struct {
	conversations *repository.ConversationRepository
	messages      *repository.MessageRepository
	configs       *repository.APIConfigRepository
	stats         *repository.PatternStatRepository
	patterns      *pattern.Store
	llm           *service.LLMService
	chat          *service.ChatService
	suggest       *service.SuggestService
	status        *service.StatusService
	staticDir     string
	scheduler     interface {
		GetNextPatternRefresh() time.Time
		GetNextIndexOptimize() time.Time
	}
}

func NewHandler(db *gorm.DB, patterns *pattern.Store, cfg *config.Config) *Handler {
	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	configs := repository.NewAPIConfigRepository(db)

	llm := service.NewLLMService(configs, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second, service.Options{
		Temperature: cfg.Upstream.Temperature,
		MaxTokens:   cfg.Upstream.MaxTokens,
	})
	chat := service.NewChatService(llm, conversations, messages, patterns, cfg.Patterns.GlobalPromptPath)
	if cfg.Upstream.CountTokens {
		chat.SetTokenCounter(service.NewTokenCounter("cl100k_base"))
	}

	return &Handler{
		conversations: conversations,
		messages:      messages,
		configs:       configs,
		stats:         repository.NewPatternStatRepository(db),
		patterns:      patterns,
		llm:           llm,
		chat:          chat,
		suggest:       service.NewSuggestService(llm, patterns),
		status:        service.NewStatusService(conversations, messages, configs, patterns),
		staticDir:     cfg.Server.StaticDir,
	}
}

// SetScheduler 设置调度器,用于状态接口返回下次执行时间
func (h *Handler) SetScheduler(scheduler interface {
	GetNextPatternRefresh() time.Time
	GetNextIndexOptimize() time.Time
}) {
	h.scheduler = scheduler
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(RequestID())

	if h.staticDir != "" {
		if info, err := os.Stat(h.staticDir); err == nil && info.IsDir() {
			r.Static("/static", h.staticDir)
			r.GET("/", h.IndexPage)
		}
	}

	api := r.Group("/api")
	{
		// Conversations
		api.GET("/conversations", h.ListConversations)
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.PUT("/conversations/:id", h.RenameConversation)
		api.DELETE("/conversations/:id", h.DeleteConversation)
		api.GET("/search", h.SearchConversations)
		api.GET("/search/messages", h.SearchMessages)

		// Chat
		api.POST("/chat", h.Chat)
		api.POST("/enhance", h.Enhance)

		// Patterns
		api.GET("/patterns", h.ListPatterns)
		api.GET("/patterns/categories", h.PatternCategories)
		api.GET("/patterns/search", h.SearchPatterns)
		api.GET("/patterns/recommend", h.RecommendPatterns)
		api.GET("/patterns/stats/popular", h.PopularPatterns)
		api.GET("/patterns/:name", h.GetPattern)
		api.POST("/patterns/suggest", h.SuggestPatterns)
		api.POST("/patterns/generate", h.GeneratePattern)
		api.POST("/patterns/save", h.SavePattern)

		// API configs
		api.GET("/config", h.ListConfigs)
		api.GET("/config/active", h.ActiveConfig)
		api.POST("/config", h.CreateConfig)
		api.PUT("/config/:id", h.UpdateConfig)
		api.DELETE("/config/:id", h.DeleteConfig)
		api.POST("/config/:id/activate", h.ActivateConfig)
		api.GET("/config/:id/models", h.ListModels)
		api.POST("/config/:id/test", h.TestConfig)

		// Status
		api.GET("/status", h.GetStatus)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s %s: %v", c.GetString(requestIDKey), c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		fail(c, errs.Validation("", "请求格式错误: "+err.Error()))
		return false
	}
	return true
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, errs.Validation("id", "无效的 ID"))
		return 0, false
	}
	return uint(id), true
}

// ===== 页面 =====

func (h *Handler) IndexPage(c *gin.Context) {
	index := filepath.Join(h.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(index)
}

// ===== 会话相关 =====

func (h *Handler) ListConversations(c *gin.Context) {
	conversations, err := h.conversations.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conversations)
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	// 请求体可为空
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	conv, err := h.conversations.Create(c.Request.Context(), req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	if _, err := h.conversations.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	messages, err := h.messages.ListByConversation(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, messages)
}

func (h *Handler) RenameConversation(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if !bind(c, &req) {
		return
	}
	conv, err := h.conversations.Rename(c.Request.Context(), id, req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conv)
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	id, valid := parseID(c)
	if !valid {
		return
	}
	if err := h.conversations.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) SearchConversations(c *gin.Context) {
	conversations, err := h.conversations.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, conversations)
}

func (h *Handler) SearchMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	hits, err := h.messages.SearchContent(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, hits)
}

// ===== Status相关 =====

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.status.GetSystemStatus(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	// 添加定时任务信息
	if h.scheduler != nil {
		status.NextPatternRefresh = h.scheduler.GetNextPatternRefresh()
		status.NextIndexOptimize = h.scheduler.GetNextIndexOptimize()
	}

	ok(c, status)
}
