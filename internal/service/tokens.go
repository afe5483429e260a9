package service

import (
	"log"
	"sync"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// TokenCounter token 估算。tiktoken 不可用(如离线没有 BPE 缓存)时回退到启发式
type TokenCounter struct {
	mu       sync.Mutex
	encoder  *tiktoken.Tiktoken
	fallback bool
}

func NewTokenCounter(encoding string) *TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Printf("[Tokens] 加载编码 %s 失败,使用估算: %v", encoding, err)
		return &TokenCounter{fallback: true}
	}
	return &TokenCounter{encoder: enc}
}

// NewHeuristicCounter 只使用启发式估算
func NewHeuristicCounter() *TokenCounter {
	return &TokenCounter{fallback: true}
}

func (t *TokenCounter) Precise() bool { return !t.fallback }

func (t *TokenCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.fallback {
		return heuristicTokens(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// CountMessages 每条消息另加约 4 个 token 的结构开销
func (t *TokenCounter) CountMessages(messages []openai.ChatCompletionMessage) int {
	total := 0
	for _, m := range messages {
		total += 4 + t.CountText(m.Role) + t.CountText(m.Content)
	}
	return total
}

// 中日韩字符约 1.5 token/字,其余约 4 字符/token
func heuristicTokens(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)*1.5 + float64(other)*0.25)
	if n < 1 {
		n = 1
	}
	return n
}
