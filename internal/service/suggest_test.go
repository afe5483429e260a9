package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geek-hub/internal/errs"
)

func replyWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionJSON(content))
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"[1]":                      "[1]",
		"```json\n[1]\n```":        "[1]",
		"```\n[1]\n```":            "[1]",
		"  ```json\n[{\"a\":1}]```": `[{"a":1}]`,
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCodeFence(in), in)
	}
}

func TestAISuggest(t *testing.T) {
	up := newUpstream(t, replyWith("```json\n[{\"name\":\"summarize\",\"reason\":\"快速总结长文内容\"}]\n```"))
	env := newTestEnv(t, up)

	got, err := env.suggest.Suggest(context.Background(), "帮我总结一篇文章")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, AISuggestion{Name: "summarize", Reason: "快速总结长文内容"}, got[0])

	p := up.lastPayload(t)
	require.Len(t, p.Messages, 2)
	assert.Contains(t, p.Messages[0].Content, "- summarize: 总结内容要点")
	assert.Equal(t, "帮我总结一篇文章", p.Messages[1].Content)
}

func TestAISuggestParseError(t *testing.T) {
	up := newUpstream(t, replyWith("I think you should use summarize."))
	env := newTestEnv(t, up)

	_, err := env.suggest.Suggest(context.Background(), "总结")
	var parseErr *errs.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))
}

func TestAISuggestValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.suggest.Suggest(context.Background(), " ")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
}

func TestGeneratePattern(t *testing.T) {
	up := newUpstream(t, replyWith("# IDENTITY and PURPOSE\n..."))
	env := newTestEnv(t, up)
	ctx := context.Background()

	got, err := env.suggest.Generate(ctx, "把会议记录整理成待办", "summarize")
	require.NoError(t, err)
	assert.Equal(t, "# IDENTITY and PURPOSE\n...", got)

	p := up.lastPayload(t)
	assert.Contains(t, p.Messages[0].Content, "Pattern 架构师")
	assert.Contains(t, p.Messages[1].Content, "参考模式 (summarize) 的结构：\nYou summarize.")
	assert.Contains(t, p.Messages[1].Content, "用户需求描述：把会议记录整理成待办")

	// 参考 pattern 不存在时不附带结构
	_, err = env.suggest.Generate(ctx, "写周报", "missing")
	require.NoError(t, err)
	assert.NotContains(t, up.lastPayload(t).Messages[1].Content, "参考模式")

	_, err = env.suggest.Generate(ctx, "", "")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
}
