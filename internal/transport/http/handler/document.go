package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/model"
	"paperchat/internal/retrieval"
	"paperchat/internal/transport/http/response"
)

const maxPDFSize = 50 << 20 // 50 MB

type DocumentHandler struct {
	docService  *app.DocumentService
	chatService *app.ChatService
}

func NewDocumentHandler(docService *app.DocumentService, chatService *app.ChatService) *DocumentHandler {
	return &DocumentHandler{docService: docService, chatService: chatService}
}

// Upload accepts a multipart form with "file" (PDF) and optional "title".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxPDFSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 50MB)")
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	doc, err := h.docService.Upload(c.Request.Context(), app.UploadInput{
		UserID:   userID,
		Title:    strings.TrimSpace(c.PostForm("title")),
		Filename: file.Filename,
		PDF:      f,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "PDF contains no extractable text")
			return
		}
		response.ServiceError(c, err, "upload failed")
		return
	}

	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.docService.ListDocuments(userID)
	if err != nil {
		response.ServiceError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Status(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	status, err := h.docService.GetDocumentStatus(c.Request.Context(), userID, docID)
	if err != nil {
		response.ServiceError(c, err, "get document failed")
		return
	}
	response.OK(c, status)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}
	if err := h.docService.DeleteDocument(userID, docID); err != nil {
		response.ServiceError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": docID})
}

type SearchRequest struct {
	Query               string                  `json:"query" binding:"required"`
	Strategy            string                  `json:"strategy"`
	Limit               int                     `json:"limit"`
	SimilarityThreshold float64                 `json:"similarity_threshold"`
	SectionTypes        []string                `json:"section_types"`
	PageRange           *retrieval.PageRange    `json:"page_range"`
	BoostFactors        *retrieval.BoostFactors `json:"boost_factors"`
}

// Search exposes the retrieval engine's strategies over one document.
func (h *DocumentHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docID, err := parseUintParam(c, "id")
	if err != nil || docID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	sectionTypes := make([]model.SectionType, 0, len(req.SectionTypes))
	for _, st := range req.SectionTypes {
		sectionTypes = append(sectionTypes, model.SectionType(st))
	}

	results, err := h.chatService.AdvancedSearch(c.Request.Context(), userID, docID, req.Query, retrieval.SearchOptions{
		Strategy:            retrieval.Strategy(req.Strategy),
		Limit:               req.Limit,
		SimilarityThreshold: req.SimilarityThreshold,
		SectionTypes:        sectionTypes,
		PageRange:           req.PageRange,
		BoostFactors:        req.BoostFactors,
	})
	if err != nil {
		response.ServiceError(c, err, "search failed")
		return
	}

	response.OK(c, results)
}

func parseUintParam(c *gin.Context, key string) (uint, error) {
	s := c.Param(key)
	u, err := strconv.ParseUint(s, 10, 64)
	return uint(u), err
}
