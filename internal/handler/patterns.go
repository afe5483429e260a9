package handler

import (
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"geek-hub/internal/errs"
)

const popularLimit = 10

func (h *Handler) ListPatterns(c *gin.Context) {
	list, err := h.patterns.Summaries()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, list)
}

func (h *Handler) PatternCategories(c *gin.Context) {
	categories, err := h.patterns.Categories()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, categories)
}

func (h *Handler) SearchPatterns(c *gin.Context) {
	list, err := h.patterns.Search(c.Query("q"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, list)
}

// RecommendPatterns 本地打分推荐,用于搜索无结果时
func (h *Handler) RecommendPatterns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	suggestions, err := h.patterns.Suggest(c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, suggestions)
}

func (h *Handler) PopularPatterns(c *gin.Context) {
	stats, err := h.stats.Popular(c.Request.Context(), popularLimit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

// GetPattern 获取详情并累加使用次数
func (h *Handler) GetPattern(c *gin.Context) {
	name := c.Param("name")
	p, err := h.patterns.Get(name)
	if err != nil {
		fail(c, err)
		return
	}
	if p == nil {
		fail(c, errs.NotFound("Pattern", name))
		return
	}
	if err := h.stats.Record(c.Request.Context(), p.Name); err != nil {
		log.Printf("[Pattern] %v", err)
	}
	ok(c, p)
}

func (h *Handler) SuggestPatterns(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}
	if !bind(c, &req) {
		return
	}
	suggestions, err := h.suggest.Suggest(c.Request.Context(), req.Query)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, suggestions)
}

func (h *Handler) GeneratePattern(c *gin.Context) {
	var req struct {
		Description      string `json:"description"`
		ReferencePattern string `json:"referencePattern"`
	}
	if !bind(c, &req) {
		return
	}
	content, err := h.suggest.Generate(c.Request.Context(), req.Description, req.ReferencePattern)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, content)
}

func (h *Handler) SavePattern(c *gin.Context) {
	var req struct {
		Name          string `json:"name"`
		Content       string `json:"content"`
		DescriptionZh string `json:"description_zh"`
	}
	if !bind(c, &req) {
		return
	}
	p, err := h.patterns.Save(req.Name, req.Content, req.DescriptionZh)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}
