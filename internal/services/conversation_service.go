// Package services – ConversationService
//
// ConversationService owns two-party conversations and their messages. A pair
// has at most one conversation: lookups go through the canonical pair and
// creation relies on the unique pair index, with a keyed lock so concurrent
// callers in this process share one insert. Appends are validated against the
// participants, normalized, and committed together with the conversation's
// activity timestamp before both parties are notified.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
)

// MessageInput is an inbound message before it is stored.
type MessageInput struct {
	From string
	To   string
	Kind domain.MessageKind
	Text string
	File string
}

// NewMessageNotice is the payload of new_message.
type NewMessageNotice struct {
	ConversationID string         `json:"conversation_id"`
	Message        domain.Message `json:"message"`
}

// ConversationService coordinates conversation lookup and message storage.
type ConversationService struct {
	DB     *gorm.DB
	Notify Notifier

	// MaxTextRunes caps message text; 0 disables the check.
	MaxTextRunes int

	locks keyedLocker
}

// NewConversationService constructs a ConversationService with default limits.
func NewConversationService(db *gorm.DB, n Notifier) *ConversationService {
	return &ConversationService{DB: db, Notify: n, MaxTextRunes: 4000}
}

// FindOrCreate returns the conversation of {a, b}, creating an empty one if
// none exists. Argument order does not matter.
func (s *ConversationService) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "FindOrCreate",
		trace.WithAttributes(
			attribute.String("user.a", a),
			attribute.String("user.b", b),
		))
	defer span.End()

	if a == "" || b == "" {
		return nil, ErrMissingUser
	}
	if a == b {
		return nil, ErrSelfReference
	}

	unlock := s.locks.Lock(pairKey("conversation", a, b))
	defer unlock()

	c, err := repo.FindConversationByPair(ctx, s.DB, a, b)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageError(err)
	}

	created, err := repo.InsertConversationIfAbsent(ctx, s.DB, a, b)
	if err != nil {
		return nil, storageError(err)
	}
	span.SetAttributes(attribute.Bool("conversation.created", created))

	c, err = repo.FindConversationByPair(ctx, s.DB, a, b)
	if err != nil {
		return nil, storageError(err)
	}
	c.Messages = []domain.Message{}
	return c, nil
}

// ListForUser returns every conversation userID participates in.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if userID == "" {
		return nil, ErrMissingUser
	}
	out, err := repo.ListConversationsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, storageError(err)
	}
	return c, nil
}

// AppendMessage validates in against the conversation's participants, stores
// it, and notifies both parties. The sender receives an echo.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID string, in MessageInput) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "AppendMessage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("from.id", in.From),
			attribute.String("to.id", in.To),
		))
	defer span.End()

	c, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msg, err := s.buildMessage(c, in)
	if err != nil {
		return nil, err
	}

	var stored *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, conversationID, msg)
		if err != nil {
			return err
		}
		if err := repo.TouchConversation(ctx, tx, conversationID, m.CreatedAt); err != nil {
			return err
		}
		stored = m
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	notice := NewMessageNotice{ConversationID: conversationID, Message: *stored}
	notify(s.Notify, stored.ToID, EventNewMessage, notice)
	notify(s.Notify, stored.FromID, EventNewMessage, notice)
	return stored, nil
}

// GetMessages returns the full ordered message sequence of a conversation.
func (s *ConversationService) GetMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "GetMessages",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)))
	defer span.End()

	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}
	out, err := repo.ListMessages(s.DB.WithContext(ctx), conversationID, 0)
	if err != nil {
		return nil, storageError(err)
	}
	return out, nil
}

// ListMessagesPage returns a page of messages in append order plus the total.
func (s *ConversationService) ListMessagesPage(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListMessagesPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, storageError(err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	if err != nil {
		return nil, 0, storageError(err)
	}
	return items, total, nil
}

// buildMessage checks participants and body and returns the row to insert.
func (s *ConversationService) buildMessage(c *domain.Conversation, in MessageInput) (domain.Message, error) {
	if in.From == in.To || !c.Has(in.From) || !c.Has(in.To) {
		return domain.Message{}, ErrInvalidMessage
	}
	if in.Kind == "" {
		in.Kind = domain.KindText
	}
	if !in.Kind.Valid() {
		return domain.Message{}, ErrInvalidMessage
	}

	m := domain.Message{FromID: in.From, ToID: in.To, Kind: in.Kind}
	switch in.Kind {
	case domain.KindText:
		text := normalizeText(in.Text)
		if text == "" {
			return domain.Message{}, ErrInvalidMessage
		}
		if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
			return domain.Message{}, ErrMessageTooLong
		}
		m.Text = text
	default:
		file := strings.TrimSpace(in.File)
		if file == "" {
			return domain.Message{}, ErrInvalidMessage
		}
		m.File = file
		m.Text = normalizeText(in.Text)
	}
	return m, nil
}

// normalizeText applies NFC and trims surrounding whitespace.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
