package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"advisor-twin/internal/domain"
	"advisor-twin/internal/repository"
)

const transcriptSeparator = "\n\n"

// ChatService archives chat transcripts and serves them back to editors.
type ChatService interface {
	Save(ctx context.Context, messages []domain.ChatMessage) (*SaveResult, error)
	List(ctx context.Context) ([]domain.ChatSession, error)
	Get(ctx context.Context, id int64) (*domain.ChatSession, error)
	DeleteMany(ctx context.Context, ids []int64) error
	DeleteAll(ctx context.Context) error
}

// Mirror replicates committed sessions to external document storage.
// Enqueue must not block; it reports whether the session was accepted.
type Mirror interface {
	Enabled() bool
	Enqueue(session domain.ChatSession) bool
}

// MirrorStatus describes what happened to the external copy of a save.
type MirrorStatus struct {
	Enabled bool
	Queued  bool
}

type SaveResult struct {
	Session domain.ChatSession
	Mirror  MirrorStatus
}

type chatService struct {
	sessions repository.ChatSessionRepository
	mirror   Mirror
	logger   logrus.FieldLogger
}

// NewChatService builds a ChatService. mirror may be nil.
func NewChatService(sessions repository.ChatSessionRepository, mirror Mirror, logger logrus.FieldLogger) ChatService {
	return &chatService{
		sessions: sessions,
		mirror:   mirror,
		logger:   logger.WithField("component", "chat"),
	}
}

func (s *chatService) Save(ctx context.Context, messages []domain.ChatMessage) (*SaveResult, error) {
	if len(messages) == 0 {
		return nil, validationError("No messages to save")
	}
	for i, msg := range messages {
		if strings.TrimSpace(msg.Role) == "" {
			return nil, validationError(fmt.Sprintf("Message %d is missing a role", i))
		}
	}

	session, err := s.sessions.Create(ctx, RenderTranscript(messages))
	if err != nil {
		return nil, fmt.Errorf("save chat session: %w", err)
	}

	result := &SaveResult{Session: *session}
	if s.mirror != nil && s.mirror.Enabled() {
		result.Mirror.Enabled = true
		result.Mirror.Queued = s.mirror.Enqueue(*session)
		if !result.Mirror.Queued {
			s.logger.WithField("session_id", session.ID).Warn("mirror queue full, transcript not mirrored")
		}
	}
	return result, nil
}

func (s *chatService) List(ctx context.Context) ([]domain.ChatSession, error) {
	return s.sessions.List(ctx)
}

func (s *chatService) Get(ctx context.Context, id int64) (*domain.ChatSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *chatService) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return validationError("No session ids provided")
	}
	if err := s.sessions.DeleteMany(ctx, ids); err != nil {
		return err
	}
	s.logger.WithField("count", len(ids)).Info("chat sessions deleted")
	return nil
}

func (s *chatService) DeleteAll(ctx context.Context) error {
	if err := s.sessions.DeleteAll(ctx); err != nil {
		return err
	}
	s.logger.Info("all chat sessions deleted")
	return nil
}

// RenderTranscript labels each turn with its upper-cased role and joins the
// turns with a blank line. The assistant side is labeled TWIN.
func RenderTranscript(messages []domain.ChatMessage) string {
	turns := make([]string, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, roleLabel(msg.Role)+": "+msg.Content)
	}
	return strings.Join(turns, transcriptSeparator)
}

func roleLabel(role string) string {
	role = strings.TrimSpace(role)
	if strings.EqualFold(role, "assistant") {
		return "TWIN"
	}
	return strings.ToUpper(role)
}
