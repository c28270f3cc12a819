package repository

import (
	"context"
	"fmt"

	"kb-rag/internal/models"
	"kb-rag/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var conversationColumns = []string{
	"id", "uid", "user_id", "title", "model", "first_message_at", "last_message_at", "created_at", "updated_at",
}

var messageColumns = []string{
	"id", "conversation_id", "role", "content", "tokens_prompt", "tokens_completion",
	"latency_ms", "model", "error", "created_at",
}

type ChatRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewChatRepository(db postgres.DB, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		db:     db,
		logger: logger,
	}
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(
		&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TokensPrompt, &m.TokensCompletion,
		&m.LatencyMS, &m.Model, &m.Error, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ChatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		sql, args, err := psql.Insert("conversations").
			Columns("uid", "user_id", "title", "model").
			Values(conv.UID, conv.UserID, conv.Title, conv.Model).
			Suffix("RETURNING id, created_at, updated_at").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sql, args...).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}

		if len(conv.KBIDs) == 0 {
			return nil
		}
		links := psql.Insert("conversation_kbs").Columns("conversation_id", "kb_id")
		for _, kbID := range conv.KBIDs {
			links = links.Values(conv.ID, kbID)
		}
		if _, err := exec(ctx, tx, links.Suffix("ON CONFLICT DO NOTHING")); err != nil {
			return fmt.Errorf("failed to link knowledge bases: %w", err)
		}
		return nil
	})
}

// GetConversation returns a live conversation of userID with its KB links.
func (r *ChatRepository) GetConversation(ctx context.Context, id, userID int64) (*models.Conversation, error) {
	sql, args, err := psql.Select(conversationColumns...).
		From("conversations").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"deleted_at": nil}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := r.db.QueryRow(ctx, sql, args...).Scan(
		&conv.ID, &conv.UID, &conv.UserID, &conv.Title, &conv.Model,
		&conv.FirstMessageAt, &conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}

	sql, args, err = psql.Select("kb_id").
		From("conversation_kbs").
		Where(squirrel.Eq{"conversation_id": conv.ID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var kbID int64
		if err := rows.Scan(&kbID); err != nil {
			return nil, err
		}
		conv.KBIDs = append(conv.KBIDs, kbID)
	}
	return &conv, rows.Err()
}

// AddMessage persists msg and bumps the conversation activity timestamps in
// one transaction.
func (r *ChatRepository) AddMessage(ctx context.Context, msg *models.Message) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		sql, args, err := psql.Insert("messages").
			Columns("conversation_id", "role", "content", "tokens_prompt", "tokens_completion",
				"latency_ms", "model", "error").
			Values(msg.ConversationID, msg.Role, msg.Content, msg.TokensPrompt, msg.TokensCompletion,
				msg.LatencyMS, msg.Model, msg.Error).
			Suffix("RETURNING id, created_at").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sql, args...).Scan(&msg.ID, &msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := exec(ctx, tx, psql.Update("conversations").
			Set("first_message_at", squirrel.Expr("COALESCE(first_message_at, NOW())")).
			Set("last_message_at", squirrel.Expr("NOW()")).
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": msg.ConversationID})); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns up to limit messages older than beforeID (all when
// beforeID is zero), newest window first selected, returned in ascending id
// order.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	query := psql.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("id DESC")
	if beforeID > 0 {
		query = query.Where(squirrel.Lt{"id": beforeID})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// FirstMessage returns the earliest message of role with non-null content.
func (r *ChatRepository) FirstMessage(ctx context.Context, conversationID int64, role models.Role) (*models.Message, error) {
	sql, args, err := psql.Select(messageColumns...).
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		Where(squirrel.Eq{"role": role}).
		Where(squirrel.NotEq{"content": nil}).
		OrderBy("id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	m, err := scanMessage(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// SetTitleIfEmpty stores title unless the conversation already has one.
func (r *ChatRepository) SetTitleIfEmpty(ctx context.Context, conversationID int64, title string) (bool, error) {
	tag, err := exec(ctx, r.db, psql.Update("conversations").
		Set("title", title).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": conversationID}).
		Where(squirrel.Or{squirrel.Eq{"title": nil}, squirrel.Eq{"title": ""}}))
	if err != nil {
		return false, fmt.Errorf("failed to set conversation title: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
