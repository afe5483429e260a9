package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigError 没有可用的激活 API 配置
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Msg == "" {
		return "未找到激活的 API 配置"
	}
	return e.Msg
}

// UpstreamError 上游接口返回非 2xx
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API 请求失败: %d - %s", e.Status, e.Body)
}

// ProtocolError 上游响应结构不符合预期
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ParseError AI 返回的内容不是合法 JSON
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError 调用方提供的字段缺失或非法
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NotFoundError 会话/pattern/配置不存在
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s 不存在: %s", e.Kind, e.ID)
}

func Validation(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func NotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: fmt.Sprint(id)}
}

// HTTPStatus 将错误映射为 HTTP 状态码
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		config     *ConfigError
		upstream   *UpstreamError
		protocol   *ProtocolError
		parse      *ParseError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &config):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream), errors.As(err, &protocol), errors.As(err, &parse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
