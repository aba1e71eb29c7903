package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"paperchat/internal/ai"
	"paperchat/internal/model"
	"paperchat/internal/repository"
	"paperchat/internal/retrieval"
	"paperchat/internal/workflow"
)

const plainAskTopK = 5

// HistoryCache is the Redis-backed session history cache; nil disables it.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.ChatMessage) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// ChatService is the conversation layer: it owns sessions, runs the
// adaptive explanation workflow (or the plain retrieval path), and
// persists each turn atomically with the session stats.
type ChatService struct {
	db           *gorm.DB
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	docRepo      *repository.DocumentRepository
	engine       *retrieval.Engine
	wf           *workflow.Workflow
	llm          *ai.Client
	historyCache HistoryCache
}

func NewChatService(
	db *gorm.DB,
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	docRepo *repository.DocumentRepository,
	engine *retrieval.Engine,
	wf *workflow.Workflow,
	llm *ai.Client,
	historyCache HistoryCache,
) *ChatService {
	return &ChatService{
		db:           db,
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		docRepo:      docRepo,
		engine:       engine,
		wf:           wf,
		llm:          llm,
		historyCache: historyCache,
	}
}

type CreateSessionInput struct {
	UserID         uint
	DocumentID     uint
	Title          string
	EducationLevel string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.ChatSession, error) {
	if input.UserID == 0 || input.DocumentID == 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(input.DocumentID, input.UserID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = doc.Title
	}
	session := &model.ChatSession{
		UserID:         input.UserID,
		DocumentID:     input.DocumentID,
		Title:          title,
		EducationLevel: string(workflow.ParseEducationLevel(input.EducationLevel)),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionID)
	}
	return nil
}

type ChatInput struct {
	UserID          uint
	SessionID       uint
	Query           string
	HighlightedText string
}

type Citation struct {
	ChunkID     uint    `json:"chunk_id"`
	PageNumber  int     `json:"page_number"`
	SectionType string  `json:"section_type"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
}

type ResponseMessage struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type ChatResponse struct {
	Message            ResponseMessage `json:"message"`
	Citations          []Citation      `json:"citations"`
	SuggestedQuestions []string        `json:"suggested_questions"`
	ProcessingTime     int64           `json:"processing_time_ms"`
}

// ProcessAdaptiveExplanation runs one chat turn through the adaptive
// workflow and persists the turn. The two messages and the session stats
// update commit together or not at all.
func (s *ChatService) ProcessAdaptiveExplanation(ctx context.Context, input ChatInput) (*ChatResponse, error) {
	session, doc, err := s.resolveSession(input)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	state, err := s.wf.Run(ctx, workflow.Request{
		Query:           input.Query,
		DocumentID:      doc.ID,
		HighlightedText: input.HighlightedText,
		EducationLevel:  workflow.EducationLevel(session.EducationLevel),
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{
		"complexity":      state.Complexity,
		"user_knowledge":  state.UserKnowledge,
		"confidence":      state.Confidence,
		"refined":         state.Refined,
		"education_level": session.EducationLevel,
	}
	response := &ChatResponse{
		Message: ResponseMessage{
			Content:  state.FinalText(),
			Metadata: metadata,
		},
		Citations:          citationsFrom(state.ContextChunks),
		SuggestedQuestions: state.FollowUpQuestions,
		ProcessingTime:     time.Since(started).Milliseconds(),
	}

	if err := s.persistTurn(ctx, session, input, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Ask is the plain retrieval path for callers that disable workflow mode:
// one semantic search, one completion, same transactional persistence.
func (s *ChatService) Ask(ctx context.Context, input ChatInput) (*ChatResponse, error) {
	session, doc, err := s.resolveSession(input)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results, err := s.engine.Search(ctx, input.Query, doc.ID, retrieval.SearchOptions{
		Strategy:            retrieval.StrategySemanticOnly,
		Limit:               plainAskTopK,
		SimilarityThreshold: 0.5,
	})
	if err != nil {
		return nil, err
	}

	var contextBlock strings.Builder
	for _, r := range results {
		contextBlock.WriteString("\n---\n")
		contextBlock.WriteString(r.Chunk.Content)
	}

	level := workflow.EducationLevel(session.EducationLevel)
	prompt := fmt.Sprintf(
		"Answer the question using only the context below. %s If the context is insufficient, say so.\n\nContext:%s\n---\n\nQuestion: %s\n\nAnswer:",
		level.Guidance(), contextBlock.String(), input.Query)

	answer, err := s.llm.Invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	response := &ChatResponse{
		Message: ResponseMessage{
			Content:  strings.TrimSpace(answer),
			Metadata: map[string]interface{}{"mode": "plain", "education_level": session.EducationLevel},
		},
		Citations:      citationsFrom(results),
		ProcessingTime: time.Since(started).Milliseconds(),
	}
	if err := s.persistTurn(ctx, session, input, response); err != nil {
		return nil, err
	}
	return response, nil
}

// AdvancedSearch exposes the retrieval engine to the API after an
// ownership check.
func (s *ChatService) AdvancedSearch(ctx context.Context, userID uint, documentID uint, query string, opts retrieval.SearchOptions) ([]retrieval.SearchResult, error) {
	if userID == 0 || documentID == 0 || strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != model.DocumentStatusReady {
		return nil, ErrDocumentNotReady
	}
	return s.engine.Search(ctx, query, documentID, opts)
}

func (s *ChatService) GetHistory(userID, sessionID uint, limit int) ([]model.ChatMessage, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) resolveSession(input ChatInput) (*model.ChatSession, *model.Document, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, nil, ErrMessageEmpty
	}
	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	doc, err := s.docRepo.GetByID(session.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}
	if doc.Status != model.DocumentStatusReady {
		return nil, nil, ErrDocumentNotReady
	}
	return session, doc, nil
}

// persistTurn writes the user message, the assistant message, and the
// session stats update in one transaction, then invalidates the cached
// history.
func (s *ChatService) persistTurn(ctx context.Context, session *model.ChatSession, input ChatInput, response *ChatResponse) error {
	metadataJSON, _ := json.Marshal(response.Message.Metadata)
	now := time.Now()

	userMessage := model.ChatMessage{
		SessionID:       session.ID,
		UserID:          session.UserID,
		Role:            "user",
		Content:         strings.TrimSpace(input.Query),
		HighlightedText: strings.TrimSpace(input.HighlightedText),
		CreatedAt:       now,
	}
	assistantMessage := model.ChatMessage{
		SessionID: session.ID,
		UserID:    session.UserID,
		Role:      "assistant",
		Content:   response.Message.Content,
		Metadata:  string(metadataJSON),
		CreatedAt: now,
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, session.ID)
		_ = s.historyCache.DeleteHistory(ctx, session.ID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&userMessage).Error; err != nil {
			return fmt.Errorf("persist user message failed: %w", err)
		}
		if err := tx.Create(&assistantMessage).Error; err != nil {
			return fmt.Errorf("persist assistant message failed: %w", err)
		}
		updates := map[string]interface{}{
			"message_count":   gorm.Expr("message_count + ?", 2),
			"last_message_at": now,
		}
		if err := tx.Model(&model.ChatSession{}).Where("id = ?", session.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update session stats failed: %w", err)
		}
		return nil
	})
}

func citationsFrom(results []retrieval.SearchResult) []Citation {
	citations := make([]Citation, 0, len(results))
	for _, r := range results {
		snippet := r.Chunk.Content
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		score := r.RelevanceScore
		if score == 0 {
			score = r.Similarity
		}
		citations = append(citations, Citation{
			ChunkID:     r.Chunk.ID,
			PageNumber:  r.Chunk.PageNumber,
			SectionType: string(r.Chunk.SectionType),
			Snippet:     snippet,
			Score:       score,
		})
	}
	return citations
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
