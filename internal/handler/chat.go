package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"geek-hub/internal/service"
)

// Chat 流式对话。通道打开前的错误以 HTTP 状态返回,之后的错误以 error 事件推送
func (h *Handler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	turn, err := h.chat.Begin(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sink := service.SinkFunc(func(e service.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEvent(c.Writer, e); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	h.chat.Relay(ctx, turn, sink)
}

// writeEvent 输出一帧 "data: <json>\n\n"。前端只识别带空格的 "data: " 前缀
func writeEvent(w io.Writer, e service.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return sse.Encode(w, sse.Event{Data: append([]byte(" "), b...)})
}

func (h *Handler) Enhance(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if !bind(c, &req) {
		return
	}
	enhanced, err := h.chat.Enhance(c.Request.Context(), req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, enhanced)
}
