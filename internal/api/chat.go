package api

import (
	"github.com/gin-gonic/gin"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
)

type chatRequest struct {
	Message      string `json:"message" binding:"required"`
	SystemPrompt string `json:"system_prompt"`
}

const defaultSystemPrompt = "You are a retrieval assistant. Use the available tools to answer the user's question, and cite your sources."

// chat implements POST /chat: one request, one synchronous agent.Result.
func (h *handlers) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.chat", err, nil))
		return
	}
	auth := mustAuth(c)
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	result, err := h.deps.Agent.Run(c.Request.Context(), auth, prompt, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, result)
}

// chatStream implements POST /chat/stream: the agent loop runs once via
// RunStreaming and each step is relayed as an SSE frame as it happens, so
// a client sees progress before the final answer. The stream opens with a
// status frame and ends with a complete or an error frame.
func (h *handlers) chatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.New(apperr.ValidationFailed, "api.chatStream", err, nil))
		return
	}
	auth := mustAuth(c)
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("status", gin.H{"message": "started"})
	c.Writer.Flush()

	sink := func(frame string, payload any) {
		c.SSEvent(frame, payload)
		c.Writer.Flush()
	}

	result, err := h.deps.Agent.RunStreaming(c.Request.Context(), auth, prompt, req.Message, sink)
	if err != nil {
		sink("error", gin.H{"message": err.Error()})
		return
	}
	sink("complete", result)
}
