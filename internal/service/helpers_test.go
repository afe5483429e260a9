package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
	"geek-hub/internal/pattern"
	"geek-hub/internal/repository"
)

type staticConfig struct {
	cfg *model.APIConfig
}

func (s staticConfig) Active(context.Context) (*model.APIConfig, error) {
	if s.cfg == nil {
		return nil, &errs.ConfigError{}
	}
	return s.cfg, nil
}

// upstream 记录收到的请求体
type upstream struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []ChatPayload
	headers  []http.Header
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/chat/completions" {
			body, _ := io.ReadAll(r.Body)
			var p ChatPayload
			json.Unmarshal(body, &p)
			u.mu.Lock()
			u.payloads = append(u.payloads, p)
			u.headers = append(u.headers, r.Header.Clone())
			u.mu.Unlock()
		}
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) lastPayload(t *testing.T) ChatPayload {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.payloads)
	return u.payloads[len(u.payloads)-1]
}

func (u *upstream) config() *model.APIConfig {
	return apiConfig(u.URL + "/")
}

func apiConfig(baseURL string) *model.APIConfig {
	return &model.APIConfig{Name: "test", Vendor: "openai", Model: "test-model", APIKey: "sk-test", BaseURL: baseURL, IsActive: true}
}

func deltaLine(content string) string {
	b, _ := json.Marshal(content)
	return `data: {"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":` + string(b) + `}}]}`
}

func completionJSON(content string) string {
	b, _ := json.Marshal(content)
	return `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":` + string(b) + `},"finish_reason":"stop"}]}`
}

// streamLines 逐块写出并 flush,模拟上游分段到达
func streamLines(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			io.WriteString(w, c)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

type testEnv struct {
	convs    *repository.ConversationRepository
	msgs     *repository.MessageRepository
	configs  *repository.APIConfigRepository
	patterns *pattern.Store
	llm      *LLMService
	chat     *ChatService
	suggest  *SuggestService
	dir      string
}

func newTestEnv(t *testing.T, up *upstream) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := repository.OpenDB(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	patternsDir := filepath.Join(dir, "patterns")
	require.NoError(t, os.MkdirAll(filepath.Join(patternsDir, "summarize"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patternsDir, "summarize", "system.md"), []byte("You summarize."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(patternsDir, "pattern_translations_zh.json"), []byte(`{"summarize":"总结内容要点"}`), 0o644))

	env := &testEnv{
		convs:    repository.NewConversationRepository(db),
		msgs:     repository.NewMessageRepository(db),
		configs:  repository.NewAPIConfigRepository(db),
		patterns: pattern.NewStore(patternsDir, pattern.DefaultWeights()),
		dir:      dir,
	}
	if up != nil {
		require.NoError(t, env.configs.Create(context.Background(), up.config()))
	}
	env.llm = NewLLMService(env.configs, 0, Options{})
	env.chat = NewChatService(env.llm, env.convs, env.msgs, env.patterns, filepath.Join(dir, "global_system_prompt.md"))
	env.suggest = NewSuggestService(env.llm, env.patterns)
	return env
}

func (e *testEnv) writeGlobalPrompt(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, "global_system_prompt.md"), []byte(text), 0o644))
}

type recordSink struct {
	events []Event
	// 第 failAt 次发送返回错误,0 表示不失败
	failAt int
}

func (s *recordSink) Send(e Event) error {
	s.events = append(s.events, e)
	if s.failAt > 0 && len(s.events) >= s.failAt {
		return io.ErrClosedPipe
	}
	return nil
}

func (s *recordSink) types() []EventType {
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
