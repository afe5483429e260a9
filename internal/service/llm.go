package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
)

// ActiveConfigSource 提供当前激活的 API 配置
type ActiveConfigSource interface {
	Active(ctx context.Context) (*model.APIConfig, error)
}

// Options 单次请求参数,零值使用默认值
type Options struct {
	Temperature float32
	MaxTokens   int
	Stream      bool
}

// DefaultOptions 未配置时的请求参数
var DefaultOptions = Options{Temperature: 0.7, MaxTokens: 4096}

const maxErrorBody = 64 << 10

type LLMService struct {
	configs      ActiveConfigSource
	client       *http.Client // 单次请求,带超时
	streamClient *http.Client // 流式请求只受 ctx 约束
	defaults     Options
}

func NewLLMService(configs ActiveConfigSource, timeout time.Duration, defaults Options) *LLMService {
	if defaults.Temperature == 0 {
		defaults.Temperature = DefaultOptions.Temperature
	}
	if defaults.MaxTokens == 0 {
		defaults.MaxTokens = DefaultOptions.MaxTokens
	}
	return &LLMService{
		configs:      configs,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		defaults:     defaults,
	}
}

// ChatPayload OpenAI 兼容的 chat/completions 请求体
type ChatPayload struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Stream      bool                           `json:"stream"`
	Temperature float32                        `json:"temperature"`
	MaxTokens   int                            `json:"max_tokens"`
}

type Request struct {
	Endpoint string
	APIKey   string
	Payload  ChatPayload
}

// HTTPRequest 生成带 Bearer 认证的 HTTP 请求
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	if r.Payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// BuildRequest 基于当前激活配置构建请求,没有激活配置时返回 ConfigError
func (s *LLMService) BuildRequest(ctx context.Context, messages []openai.ChatCompletionMessage, opts Options) (*Request, error) {
	cfg, err := s.configs.Active(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildFor(cfg, messages, opts), nil
}

func (s *LLMService) buildFor(cfg *model.APIConfig, messages []openai.ChatCompletionMessage, opts Options) *Request {
	if opts.Temperature == 0 {
		opts.Temperature = s.defaults.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = s.defaults.MaxTokens
	}
	return &Request{
		Endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions",
		APIKey:   cfg.APIKey,
		Payload: ChatPayload{
			Model:       cfg.Model,
			Messages:    messages,
			Stream:      opts.Stream,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		},
	}
}

// Send 非流式调用,返回第一个 choice 的内容
func (s *LLMService) Send(ctx context.Context, messages []openai.ChatCompletionMessage, opts Options) (string, error) {
	opts.Stream = false
	req, err := s.BuildRequest(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return s.do(ctx, req)
}

func (s *LLMService) do(ctx context.Context, r *Request) (string, error) {
	req, err := r.HTTPRequest(ctx)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var chatResp completionBody
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &errs.ProtocolError{Msg: "无效的 API 响应格式", Err: err}
	}
	if len(chatResp.Choices) == 0 {
		return "", &errs.ProtocolError{Msg: "无效的 API 响应格式"}
	}
	return chatResp.Choices[0].Message.Content, nil
}

// SendStream 流式调用,返回原始响应体,由调用方读取并关闭
func (s *LLMService) SendStream(ctx context.Context, messages []openai.ChatCompletionMessage, opts Options) (io.ReadCloser, error) {
	opts.Stream = true
	r, err := s.BuildRequest(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	req, err := r.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &errs.UpstreamError{Status: resp.StatusCode, Body: string(body)}
}

// 只解码用到的字段,兼容实现对 id、created 等字段类型不一致的上游
type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Delta 流式响应中的一段增量
type Delta struct {
	Content string
	Done    bool
}

const (
	sseDataPrefix = "data: "
	sseDoneMarker = "[DONE]"
)

// ParseSSELine 解析上游 SSE 的一行。非 data 行、格式错误或没有内容时返回 false
func ParseSSELine(line string) (Delta, bool) {
	data, ok := strings.CutPrefix(line, sseDataPrefix)
	if !ok {
		return Delta{}, false
	}
	if data == sseDoneMarker {
		return Delta{Done: true}, true
	}
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return Delta{}, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return Delta{}, false
	}
	return Delta{Content: chunk.Choices[0].Delta.Content}, true
}

// ListModels 通过 SDK 获取指定配置可用的模型列表
func (s *LLMService) ListModels(ctx context.Context, cfg *model.APIConfig) ([]string, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	clientConfig.HTTPClient = s.client
	client := openai.NewClientWithConfig(clientConfig)

	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, sdkError(err)
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	return models, nil
}

// TestConnection 用指定配置发送一条测试消息
func (s *LLMService) TestConnection(ctx context.Context, cfg *model.APIConfig) (string, error) {
	if cfg.BaseURL == "" {
		return "", errs.Validation("baseUrl", "API地址未配置")
	}
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "Hi"}}
	return s.do(ctx, s.buildFor(cfg, messages, Options{MaxTokens: 16}))
}

func sdkError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &errs.UpstreamError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := string(reqErr.Body)
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &errs.UpstreamError{Status: reqErr.HTTPStatusCode, Body: body}
	}
	return fmt.Errorf("请求失败: %w", err)
}
