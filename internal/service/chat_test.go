package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geek-hub/internal/errs"
	"geek-hub/internal/model"
)

func TestAssembleMessages(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleAssistant, Content: "a1"},
	}

	tests := []struct {
		name       string
		global     string
		pattern    string
		wantSystem string
	}{
		{"both", "G", "P", "G\n\n---\n\nP"},
		{"pattern only", "", "P", "P"},
		{"global only", "G", "", "G"},
		{"neither", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := AssembleMessages(tt.global, tt.pattern, history, "q2")

			rest := msgs
			if tt.wantSystem != "" {
				require.Len(t, msgs, 4)
				assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
				assert.Equal(t, tt.wantSystem, msgs[0].Content)
				rest = msgs[1:]
			} else {
				require.Len(t, msgs, 3)
			}
			assert.Equal(t, "q1", rest[0].Content)
			assert.Equal(t, "assistant", rest[1].Role)
			assert.Equal(t, openai.ChatMessageRoleUser, rest[2].Role)
			assert.Equal(t, "q2", rest[2].Content)
		})
	}
}

func TestChatNewConversationEndToEnd(t *testing.T) {
	up := newUpstream(t, streamLines(
		": keep-alive\n\n",
		deltaLine("Hel"),
		"\n\n"+deltaLine("lo")+"\n",
		"\ndata: not-json\n\n",
		"data: [DONE]\n\n",
		deltaLine("ignored after done")+"\n\n",
	))
	env := newTestEnv(t, up)
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, turn.Created)
	assert.NotZero(t, turn.ConversationID)

	sink := &recordSink{}
	require.NoError(t, env.chat.Relay(ctx, turn, sink))

	assert.Equal(t, []EventType{EventConversation, EventContent, EventContent, EventDone}, sink.types())
	assert.Equal(t, turn.ConversationID, sink.events[0].ID)
	assert.Equal(t, "Hel", sink.events[1].Content)
	assert.Equal(t, "lo", sink.events[2].Content)
	assert.Nil(t, sink.events[3].Usage)

	msgs, err := env.msgs.ListByConversation(ctx, turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.False(t, msgs[1].Truncated)

	conv, err := env.convs.Get(ctx, turn.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "hello", conv.Title)
}

func TestChatIncludesHistoryAndPrompts(t *testing.T) {
	up := newUpstream(t, streamLines(deltaLine("ok")+"\n\ndata: [DONE]\n\n"))
	env := newTestEnv(t, up)
	env.writeGlobalPrompt(t, "  Be concise.\n")
	ctx := context.Background()

	first, err := env.chat.Begin(ctx, ChatRequest{Content: "one"})
	require.NoError(t, err)
	require.NoError(t, env.chat.Relay(ctx, first, &recordSink{}))

	second, err := env.chat.Begin(ctx, ChatRequest{ConversationID: first.ConversationID, Content: "two", PatternName: "summarize"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	require.NoError(t, env.chat.Relay(ctx, second, &recordSink{}))

	p := up.lastPayload(t)
	require.Len(t, p.Messages, 4)
	assert.Equal(t, "system", p.Messages[0].Role)
	assert.Equal(t, "Be concise.\n\n---\n\nYou summarize.", p.Messages[0].Content)
	assert.Equal(t, "one", p.Messages[1].Content)
	assert.Equal(t, "ok", p.Messages[2].Content)
	assert.Equal(t, "two", p.Messages[3].Content)
	assert.True(t, p.Stream)

	msgs, err := env.msgs.ListByConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChatUnknownPatternIsIgnored(t *testing.T) {
	up := newUpstream(t, streamLines("data: [DONE]\n\n"))
	env := newTestEnv(t, up)
	env.writeGlobalPrompt(t, "G")

	turn, err := env.chat.Begin(context.Background(), ChatRequest{Content: "hi", PatternName: "nope"})
	require.NoError(t, err)
	require.Len(t, turn.Messages, 2)
	assert.Equal(t, "G", turn.Messages[0].Content)
}

func TestBeginValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.chat.Begin(ctx, ChatRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))

	_, err = env.chat.Begin(ctx, ChatRequest{ConversationID: 99, Content: "hi"})
	assert.Equal(t, http.StatusNotFound, errs.HTTPStatus(err))

	convs, err := env.convs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestBeginTitleTruncated(t *testing.T) {
	env := newTestEnv(t, nil)
	long := strings.Repeat("长", 60)

	turn, err := env.chat.Begin(context.Background(), ChatRequest{Content: long})
	require.NoError(t, err)
	conv, err := env.convs.Get(context.Background(), turn.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("长", 50), conv.Title)
}

func TestRelayUpstreamErrorKeepsUserMessage(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	env := newTestEnv(t, up)
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	err = env.chat.Relay(ctx, turn, sink)
	var upErr *errs.UpstreamError
	require.True(t, errors.As(err, &upErr))

	assert.Equal(t, []EventType{EventConversation, EventError, EventDone}, sink.types())
	assert.Contains(t, sink.events[1].Error, "429")

	msgs, err := env.msgs.ListByConversation(ctx, turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestRelayWithoutActiveConfig(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	err = env.chat.Relay(ctx, turn, sink)
	var cfgErr *errs.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []EventType{EventConversation, EventError, EventDone}, sink.types())
	assert.Equal(t, "未找到激活的 API 配置", sink.events[1].Error)
}

func TestRelayMidStreamFailurePersistsTruncated(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		// 声明的长度大于实际写出,客户端读到 unexpected EOF
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: 4096\r\n\r\n")
		buf.WriteString(deltaLine("partial ") + "\n\n" + deltaLine("answer") + "\n\n")
		buf.Flush()
	})
	env := newTestEnv(t, up)
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)

	sink := &recordSink{}
	err = env.chat.Relay(ctx, turn, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Equal(t, []EventType{EventConversation, EventContent, EventContent, EventError, EventDone}, sink.types())

	msgs, err := env.msgs.ListByConversation(ctx, turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "partial answer", msgs[1].Content)
	assert.True(t, msgs[1].Truncated)
}

func TestRelayClientGoneStopsAndPersistsTruncated(t *testing.T) {
	up := newUpstream(t, streamLines(
		deltaLine("a")+"\n\n",
		deltaLine("b")+"\n\n",
		deltaLine("c")+"\n\n",
		"data: [DONE]\n\n",
	))
	env := newTestEnv(t, up)
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)

	// conversation 事件成功,第一个 content 事件时客户端已断开
	sink := &recordSink{failAt: 2}
	err = env.chat.Relay(ctx, turn, sink)
	assert.ErrorIs(t, err, io.ErrClosedPipe)

	msgs, err := env.msgs.ListByConversation(ctx, turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[1].Content)
	assert.True(t, msgs[1].Truncated)
}

func TestRelayCancelledContext(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, deltaLine("first")+"\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	env := newTestEnv(t, up)

	turn, err := env.chat.Begin(context.Background(), ChatRequest{Content: "hello"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sink := SinkFunc(func(e Event) error {
		if e.Type == EventContent {
			cancel()
		}
		return nil
	})
	err = env.chat.Relay(ctx, turn, sink)
	assert.ErrorIs(t, err, context.Canceled)

	msgs, err := env.msgs.ListByConversation(context.Background(), turn.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[1].Content)
	assert.True(t, msgs[1].Truncated)
}

func TestRelayUsage(t *testing.T) {
	up := newUpstream(t, streamLines(deltaLine("你好")+"\n\ndata: [DONE]\n\n"))
	env := newTestEnv(t, up)
	env.chat.SetTokenCounter(NewHeuristicCounter())
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)
	sink := &recordSink{}
	require.NoError(t, env.chat.Relay(ctx, turn, sink))

	done := sink.events[len(sink.events)-1]
	require.Equal(t, EventDone, done.Type)
	require.NotNil(t, done.Usage)
	assert.Equal(t, 3, done.Usage.CompletionTokens)
	assert.Positive(t, done.Usage.PromptTokens)
}

func TestEnhance(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, completionJSON("# 任务\n写一首诗"))
	})
	env := newTestEnv(t, up)

	got, err := env.chat.Enhance(context.Background(), "写诗")
	require.NoError(t, err)
	assert.Equal(t, "# 任务\n写一首诗", got)

	p := up.lastPayload(t)
	require.Len(t, p.Messages, 2)
	assert.Contains(t, p.Messages[0].Content, "Prompt 优化专家")
	assert.Equal(t, "写诗", p.Messages[1].Content)
	assert.False(t, p.Stream)

	_, err = env.chat.Enhance(context.Background(), "")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))

	msgs, err := env.msgs.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, msgs)
}

func TestRelayStreamSplitAcrossUTF8(t *testing.T) {
	line := deltaLine("世界") + "\n\n"
	cut := strings.Index(line, "世") + 1
	up := newUpstream(t, streamLines(line[:cut], line[cut:], "data: [DONE]"))
	env := newTestEnv(t, up)
	ctx := context.Background()

	turn, err := env.chat.Begin(ctx, ChatRequest{Content: "hello"})
	require.NoError(t, err)
	sink := &recordSink{}
	require.NoError(t, env.chat.Relay(ctx, turn, sink))
	require.Len(t, sink.events, 3)
	assert.Equal(t, "世界", sink.events[1].Content)
}
