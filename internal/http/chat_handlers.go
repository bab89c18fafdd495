package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"advisor-twin/internal/assistant"
	"advisor-twin/internal/domain"
)

type chatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type saveChatRequest struct {
	Messages []chatMessageRequest `json:"messages"`
}

type deleteSessionsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

type chatRequest struct {
	Message string               `json:"message" binding:"required"`
	History []chatMessageRequest `json:"history"`
}

// SessionResponse is the JSON form of a chat session.
type SessionResponse struct {
	ID         int64     `json:"id"`
	Transcript string    `json:"transcript"`
	CreatedAt  time.Time `json:"createdAt"`
}

func sessionToResponse(s domain.ChatSession) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		Transcript: s.Transcript,
		CreatedAt:  s.CreatedAt,
	}
}

func toMessages(in []chatMessageRequest) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(in))
	for i, m := range in {
		out[i] = domain.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if !bindJSON(c, &req, "Message is required") {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "Message is required")
		return
	}
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chat is currently unavailable"})
		return
	}

	reply, err := h.assistant.Complete(c.Request.Context(), req.Message, toMessages(req.History))
	if err != nil {
		if errors.Is(err, assistant.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chat is currently unavailable"})
			return
		}
		requestLog(c, h.logger).WithError(err).Error("chat completion failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get a response, please try again"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *Handler) saveChat(c *gin.Context) {
	var req saveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	res, err := h.chats.Save(c.Request.Context(), toMessages(req.Messages))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"sessionId":  res.Session.ID,
		"transcript": res.Session.Transcript,
		"googleDrive": gin.H{
			"enabled": res.Mirror.Enabled,
			"queued":  res.Mirror.Queued,
		},
	})
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.chats.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]SessionResponse, len(sessions))
	for i := range sessions {
		resp[i] = sessionToResponse(sessions[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid session id")
		return
	}

	session, err := h.chats.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(*session))
}

func (h *Handler) deleteSessions(c *gin.Context) {
	var req deleteSessionsRequest
	if !bindJSON(c, &req, "No session ids provided") {
		return
	}

	if err := h.chats.DeleteMany(c.Request.Context(), req.IDs); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) deleteAllSessions(c *gin.Context) {
	if err := h.chats.DeleteAll(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
