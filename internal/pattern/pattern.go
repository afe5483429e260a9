// Package pattern 管理 prompt 模板库: 加载、检索、相似推荐与保存
package pattern

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	templateFile     = "system.md"
	explanationsFile = "pattern_explanations.md"
	translationsFile = "pattern_translations_zh.json"
)

// Summary 列表接口返回的基本信息,不含模板正文
type Summary struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	DescriptionZh string   `json:"description_zh"`
	Category      string   `json:"category"`
	Keywords      []string `json:"keywords,omitempty"`
}

type Pattern struct {
	Summary
	Content string `json:"content"`
}

var categoryPrefixes = []struct {
	prefix   string
	category string
}{
	{"analyze_", "分析"},
	{"create_", "创建"},
	{"extract_", "提取"},
	{"summarize_", "总结"},
	{"write_", "写作"},
	{"improve_", "优化"},
	{"explain_", "解释"},
	{"t_", "个人"},
}

// CategoryOther 不匹配任何前缀时的分类
const CategoryOther = "其他"

// Categorize 按名称前缀分类,先匹配者优先
func Categorize(name string) string {
	for _, c := range categoryPrefixes {
		if strings.HasPrefix(name, c.prefix) {
			return c.category
		}
	}
	return CategoryOther
}

// Translation 中文翻译条目。旧格式是纯字符串,新格式带关键词
type Translation struct {
	Legacy     string
	Structured *StructuredTranslation
}

type StructuredTranslation struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Description 统一取描述文本
func (t Translation) Description() string {
	if t.Structured != nil {
		return t.Structured.Description
	}
	return t.Legacy
}

func (t Translation) Keywords() []string {
	if t.Structured != nil {
		return t.Structured.Keywords
	}
	return nil
}

// WithDescription 替换描述,结构化条目保留关键词
func (t Translation) WithDescription(desc string) Translation {
	if t.Structured != nil {
		s := *t.Structured
		s.Description = desc
		return Translation{Structured: &s}
	}
	return Translation{Legacy: desc}
}

func (t *Translation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		t.Structured = nil
		return json.Unmarshal(data, &t.Legacy)
	}
	var s StructuredTranslation
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.Legacy = ""
	t.Structured = &s
	return nil
}

func (t Translation) MarshalJSON() ([]byte, error) {
	if t.Structured != nil {
		s := *t.Structured
		if s.Keywords == nil {
			s.Keywords = []string{}
		}
		return json.Marshal(s)
	}
	return json.Marshal(t.Legacy)
}
