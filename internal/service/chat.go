package service

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
	"geek-hub/internal/pattern"
	"geek-hub/internal/repository"
	"geek-hub/internal/stream"
)

const (
	promptSeparator = "\n\n---\n\n"
	titleMaxRunes   = 50
)

const enhanceSystemPrompt = `你是一个 Prompt 优化专家。用户会给你一个简短的描述或问题，你需要将其优化为一个更详细、更有效的 Prompt。
要求：
1. 保持用户的原始意图
2. 添加必要的上下文和约束
3. 使输出更加结构化
4. 直接输出优化后的 Prompt，不要解释`

type ChatService struct {
	llm              *LLMService
	conversations    *repository.ConversationRepository
	messages         *repository.MessageRepository
	patterns         *pattern.Store
	globalPromptPath string
	tokens           *TokenCounter
}

func NewChatService(
	llm *LLMService,
	conversations *repository.ConversationRepository,
	messages *repository.MessageRepository,
	patterns *pattern.Store,
	globalPromptPath string,
) *ChatService {
	return &ChatService{
		llm:              llm,
		conversations:    conversations,
		messages:         messages,
		patterns:         patterns,
		globalPromptPath: globalPromptPath,
	}
}

// SetTokenCounter 设置后 done 事件附带 token 估算
func (s *ChatService) SetTokenCounter(t *TokenCounter) {
	s.tokens = t
}

type ChatRequest struct {
	ConversationID uint   `json:"conversationId"`
	Content        string `json:"content"`
	PatternName    string `json:"patternName"`
}

// Turn 一次对话请求在打开推送通道前准备好的状态
type Turn struct {
	ConversationID uint
	Created        bool
	Messages       []openai.ChatCompletionMessage
}

type EventType string

const (
	EventConversation EventType = "conversation"
	EventContent      EventType = "content"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Event 推送给客户端的事件
type Event struct {
	Type    EventType `json:"type"`
	ID      uint      `json:"id,omitempty"`
	Content string    `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
	Usage   *Usage    `json:"usage,omitempty"`
}

// Sink 客户端推送通道
type Sink interface {
	Send(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

// Begin 解析会话、组装消息并保存用户消息。
// 这里返回的错误发生在推送通道打开之前,可以直接作为 HTTP 错误返回。
func (s *ChatService) Begin(ctx context.Context, req ChatRequest) (*Turn, error) {
	content := req.Content
	if strings.TrimSpace(content) == "" {
		return nil, errs.Validation("content", "消息内容不能为空")
	}

	turn := &Turn{ConversationID: req.ConversationID}
	if turn.ConversationID != 0 {
		if _, err := s.conversations.Get(ctx, turn.ConversationID); err != nil {
			return nil, err
		}
	} else {
		conv, err := s.conversations.Create(ctx, truncateRunes(strings.TrimSpace(content), titleMaxRunes))
		if err != nil {
			return nil, err
		}
		turn.ConversationID = conv.ID
		turn.Created = true
	}

	history, err := s.messages.ListByConversation(ctx, turn.ConversationID)
	if err != nil {
		return nil, err
	}

	patternContent := ""
	if req.PatternName != "" {
		p, err := s.patterns.Get(req.PatternName)
		if err != nil {
			return nil, err
		}
		if p != nil {
			patternContent = p.Content
		} else {
			log.Printf("[Chat] pattern 不存在,忽略: %s", req.PatternName)
		}
	}

	turn.Messages = AssembleMessages(s.globalPrompt(), patternContent, history, content)

	if err := s.messages.Create(ctx, &model.Message{
		ConversationID: turn.ConversationID,
		Role:           model.RoleUser,
		Content:        content,
	}); err != nil {
		return nil, err
	}
	return turn, nil
}

// AssembleMessages 系统消息(全局指令 + pattern) + 历史消息 + 当前用户消息
func AssembleMessages(globalPrompt, patternContent string, history []model.Message, userText string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)

	var system string
	switch {
	case globalPrompt != "" && patternContent != "":
		system = globalPrompt + promptSeparator + patternContent
	case patternContent != "":
		system = patternContent
	default:
		system = globalPrompt
	}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})
}

// globalPrompt 每次请求重新读取,文件不存在时为空
func (s *ChatService) globalPrompt() string {
	if s.globalPromptPath == "" {
		return ""
	}
	data, err := os.ReadFile(s.globalPromptPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Chat] 无法加载全局 system prompt: %v", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Relay 推送会话 ID,转发上游增量,结束后保存助手回复并推送 done。
// 中途失败时先推送 error 再推送 done,已收到的部分内容标记为截断后保存。
func (s *ChatService) Relay(ctx context.Context, turn *Turn, sink Sink) error {
	if err := sink.Send(Event{Type: EventConversation, ID: turn.ConversationID}); err != nil {
		return err
	}

	var reply strings.Builder
	err := s.pump(ctx, turn, sink, &reply)

	if reply.Len() > 0 {
		msg := &model.Message{
			ConversationID: turn.ConversationID,
			Role:           model.RoleAssistant,
			Content:        reply.String(),
			Truncated:      err != nil,
		}
		// 客户端断开后 ctx 已取消,保存仍需完成
		if saveErr := s.messages.Create(context.WithoutCancel(ctx), msg); saveErr != nil {
			log.Printf("[Chat] 保存回复失败 (会话 %d): %v", turn.ConversationID, saveErr)
			if err == nil {
				err = saveErr
			}
		}
	}

	if err != nil {
		log.Printf("[Chat] 会话 %d 流式响应中断: %v", turn.ConversationID, err)
		if ctx.Err() == nil {
			sink.Send(Event{Type: EventError, Error: err.Error()})
		}
	}

	done := Event{Type: EventDone}
	if s.tokens != nil {
		done.Usage = &Usage{
			PromptTokens:     s.tokens.CountMessages(turn.Messages),
			CompletionTokens: s.tokens.CountText(reply.String()),
		}
	}
	sink.Send(done)
	return err
}

func (s *ChatService) pump(ctx context.Context, turn *Turn, sink Sink, reply *strings.Builder) error {
	body, err := s.llm.SendStream(ctx, turn.Messages, Options{})
	if err != nil {
		return err
	}
	defer body.Close()

	return stream.ReadLines(ctx, body, func(line string) (bool, error) {
		delta, ok := ParseSSELine(line)
		if !ok {
			return false, nil
		}
		if delta.Done {
			return true, nil
		}
		reply.WriteString(delta.Content)
		return false, sink.Send(Event{Type: EventContent, Content: delta.Content})
	})
}

// Enhance 把简短的描述改写成更完整的 prompt
func (s *ChatService) Enhance(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errs.Validation("content", "内容不能为空")
	}
	return s.llm.Send(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: enhanceSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}, Options{})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
