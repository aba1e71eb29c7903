package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type CreateSessionRequest struct {
	DocumentID uint   `json:"document_id" binding:"required"`
	Title      string `json:"title"`
	// EducationLevel overrides the account default carried in the token.
	EducationLevel string `json:"education_level"`
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	level := req.EducationLevel
	if level == "" {
		level = getEducationLevelFromContext(c)
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID:         userID,
		DocumentID:     req.DocumentID,
		Title:          req.Title,
		EducationLevel: level,
	})
	if err != nil {
		response.ServiceError(c, err, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		response.ServiceError(c, err, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, err := parseUintParam(c, "id")
	if err != nil || sessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}
	if err := h.chatService.DeleteSession(userID, sessionID); err != nil {
		response.ServiceError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

type SendMessageRequest struct {
	Message         string `json:"message" binding:"required"`
	HighlightedText string `json:"highlighted_text"`
	// Mode selects the answer path: "adaptive" (default) runs the
	// multi-stage explanation workflow, "plain" answers directly from
	// retrieved context.
	Mode string `json:"mode"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, err := parseUintParam(c, "id")
	if err != nil || sessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	input := app.ChatInput{
		UserID:          userID,
		SessionID:       sessionID,
		Query:           req.Message,
		HighlightedText: req.HighlightedText,
	}

	var resp *app.ChatResponse
	if req.Mode == "plain" {
		resp, err = h.chatService.Ask(c.Request.Context(), input)
	} else {
		resp, err = h.chatService.ProcessAdaptiveExplanation(c.Request.Context(), input)
	}
	if err != nil {
		response.ServiceError(c, err, "process message failed")
		return
	}
	response.OK(c, resp)
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	sessionID, err := parseUintParam(c, "id")
	if err != nil || sessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	messages, err := h.chatService.GetHistory(userID, sessionID, limit)
	if err != nil {
		response.ServiceError(c, err, "get history failed")
		return
	}
	response.OK(c, messages)
}
