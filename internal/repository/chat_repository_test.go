package repository

import (
	"context"
	"testing"
	"time"

	"kb-rag/internal/models"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func TestListMessagesReturnsAscending(t *testing.T) {
	mock := newMock(t)
	repo := NewChatRepository(mock, zap.NewNop())
	now := time.Now()

	rows := pgxmock.NewRows(messageColumns)
	for id := int64(30); id > 26; id-- {
		rows.AddRow(id, int64(3), models.RoleUser, strPtr("m"), nil, nil, nil, nil, nil, now)
	}
	mock.ExpectQuery(`SELECT (.+) FROM messages WHERE conversation_id = \$1 AND id < \$2 ORDER BY id DESC LIMIT 4`).
		WithArgs(int64(3), int64(31)).
		WillReturnRows(rows)

	msgs, err := repo.ListMessages(context.Background(), 3, 31, 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, id := range []int64{27, 28, 29, 30} {
		assert.Equal(t, id, msgs[i].ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMessageTouchesConversation(t *testing.T) {
	mock := newMock(t)
	repo := NewChatRepository(mock, zap.NewNop())
	now := time.Now()
	msg := &models.Message{ConversationID: 3, Role: models.RoleAssistant, Content: strPtr("hi")}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(3), models.RoleAssistant, msg.Content, msg.TokensPrompt, msg.TokensCompletion,
			msg.LatencyMS, msg.Model, msg.Error).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(100), now))
	mock.ExpectExec(`UPDATE conversations SET first_message_at = COALESCE\(first_message_at, NOW\(\)\), last_message_at = NOW\(\)`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.AddMessage(context.Background(), msg))
	assert.Equal(t, int64(100), msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversationLoadsKnowledgeBases(t *testing.T) {
	mock := newMock(t)
	repo := NewChatRepository(mock, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(`FROM conversations WHERE id = \$1 AND user_id = \$2 AND deleted_at IS NULL`).
		WithArgs(int64(3), int64(42)).
		WillReturnRows(pgxmock.NewRows(conversationColumns).
			AddRow(int64(3), "c-uid", int64(42), nil, strPtr("qwen"), nil, nil, now, now))
	mock.ExpectQuery(`SELECT kb_id FROM conversation_kbs`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"kb_id"}).AddRow(int64(1)).AddRow(int64(2)))

	conv, err := repo.GetConversation(context.Background(), 3, 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, conv.KBIDs)
	assert.Nil(t, conv.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetTitleIfEmpty(t *testing.T) {
	mock := newMock(t)
	repo := NewChatRepository(mock, zap.NewNop())

	mock.ExpectExec(`UPDATE conversations SET title = \$1`).
		WithArgs("Quarterly report", int64(3), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	updated, err := repo.SetTitleIfEmpty(context.Background(), 3, "Quarterly report")
	require.NoError(t, err)
	assert.False(t, updated)
}
