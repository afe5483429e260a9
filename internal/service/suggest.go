package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"geek-hub/internal/errs"
	"geek-hub/internal/pattern"
)

const suggestSystemPrompt = `你是一个技能推荐助手。用户会描述他们想要完成的任务，你需要从以下技能列表中推荐最匹配的 3-5 个技能。

可用技能列表：
%s

要求：
1. 只推荐与用户需求最相关的技能
2. 以 JSON 数组格式返回推荐结果，每项包含 name（技能名）和 reason（推荐理由，简短中文）
3. 按匹配度从高到低排序
4. 只输出 JSON，不要其他解释

示例输出：
[{"name": "extract_wisdom", "reason": "适合提取文章核心观点和智慧"}, {"name": "summarize", "reason": "快速总结长文内容"}]`

const generateSystemPrompt = `你是一个专业的 Pattern 架构师，专注于编写高质量的 Fabric 风格 Pattern (system.md)。
你的任务是根据用户的需求描述，生成一个功能强大、结构严谨的 Pattern。

生成的 Pattern 必须遵循以下 [标准结构]：
1. # IDENTITY and PURPOSE: 极其详尽地描述 AI 的角色、专家身份和核心职责。
2. Take a step back and think step-by-step... (此行必须原样保留)
3. # GOALS: 罗列 1-3 个核心交付目标。
4. # STEPS: 细化的算法或处理逻辑方案。
5. # OUTPUT INSTRUCTIONS: 格式要求、语调、负面限制。
6. # INPUT: 固定为 "INPUT:"。

要求：
- 使用英文编写 Pattern 正文（因为 AI 对英文指令理解更精准）。
- 语气专业、权威。
- 只输出 Markdown 内容，不要任何解释或开场白。`

// SuggestService 借助 AI 推荐和生成 pattern
type SuggestService struct {
	llm      *LLMService
	patterns *pattern.Store
}

func NewSuggestService(llm *LLMService, patterns *pattern.Store) *SuggestService {
	return &SuggestService{llm: llm, patterns: patterns}
}

type AISuggestion struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Suggest 让 AI 从全部 pattern 中挑选与描述最相关的几个
func (s *SuggestService) Suggest(ctx context.Context, query string) ([]AISuggestion, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errs.Validation("query", "请提供描述")
	}
	all, err := s.patterns.Summaries()
	if err != nil {
		return nil, err
	}

	var list strings.Builder
	for i, p := range all {
		if i > 0 {
			list.WriteByte('\n')
		}
		desc := p.DescriptionZh
		if desc == "" {
			desc = p.Description
		}
		fmt.Fprintf(&list, "- %s: %s", p.Name, desc)
	}

	reply, err := s.llm.Send(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(suggestSystemPrompt, list.String())},
		{Role: openai.ChatMessageRoleUser, Content: query},
	}, Options{})
	if err != nil {
		return nil, err
	}

	suggestions := []AISuggestion{}
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &suggestions); err != nil {
		return nil, &errs.ParseError{Msg: "无法解析 AI 响应", Err: err}
	}
	return suggestions, nil
}

// Generate 根据需求描述生成 system.md 内容,可参考已有 pattern 的结构
func (s *SuggestService) Generate(ctx context.Context, description, referencePattern string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", errs.Validation("description", "请提供需求描述")
	}

	refContent := ""
	if referencePattern != "" {
		ref, err := s.patterns.Get(referencePattern)
		if err != nil {
			return "", err
		}
		if ref != nil {
			refContent = fmt.Sprintf("参考模式 (%s) 的结构：\n%s\n\n", referencePattern, ref.Content)
		}
	}

	return s.llm.Send(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: generateSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("%s用户需求描述：%s\n\n请生成对应的 system.md 内容：", refContent, description)},
	}, Options{})
}

// stripCodeFence 去掉 ```json ... ``` 包裹
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSuffix(s, "\n")
}
