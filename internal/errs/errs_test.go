package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("content", "不能为空"), http.StatusBadRequest},
		{"not found", NotFound("会话", 7), http.StatusNotFound},
		{"config", &ConfigError{}, http.StatusServiceUnavailable},
		{"upstream", &UpstreamError{Status: 401, Body: "denied"}, http.StatusBadGateway},
		{"protocol", &ProtocolError{Msg: "无效的 API 响应格式"}, http.StatusBadGateway},
		{"parse", &ParseError{Msg: "无法解析 AI 响应"}, http.StatusBadGateway},
		{"wrapped", fmt.Errorf("chat: %w", NotFound("pattern", "x")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "API 请求失败: 500 - oops", (&UpstreamError{Status: 500, Body: "oops"}).Error())
	assert.Equal(t, "会话 不存在: 3", NotFound("会话", 3).Error())
	assert.Equal(t, "未找到激活的 API 配置", (&ConfigError{}).Error())

	inner := errors.New("unexpected end of JSON input")
	err := &ParseError{Msg: "无法解析 AI 响应", Err: inner}
	assert.ErrorIs(t, err, inner)
}
