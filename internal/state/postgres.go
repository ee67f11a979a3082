package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/domain"
	"github.com/kavik/groupwarden-go/pkg/errors"
)

const (
	selectChatStateQuery = `
		SELECT state, version
		FROM chat_states
		WHERE chat_id = $1`

	insertChatStateQuery = `
		INSERT INTO chat_states (chat_id, state, version, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chat_id) DO NOTHING`

	updateChatStateQuery = `
		UPDATE chat_states
		SET state = $2, version = $3, updated_at = now()
		WHERE chat_id = $1 AND version = $4`

	selectChatIDsQuery = `
		SELECT chat_id
		FROM chat_states
		ORDER BY chat_id`
)

// PostgresBackend persists chat states as JSONB rows. The version
// column is authoritative and guards every write.
type PostgresBackend struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresBackend(db *sql.DB, logger *zap.Logger) *PostgresBackend {
	return &PostgresBackend{
		db:     db,
		logger: logger,
	}
}

func (b *PostgresBackend) Load(ctx context.Context, chatID int64) (*domain.ChatState, error) {
	var (
		raw     []byte
		version int64
	)

	err := b.db.QueryRowContext(ctx, selectChatStateQuery, chatID).Scan(&raw, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("failed to load chat state", "load", chatID, err)
	}

	var st domain.ChatState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, errors.NewStoreError("failed to decode chat state", "load", chatID, err)
	}

	st.ChatID = chatID
	st.Version = version
	st.Normalize()

	return &st, nil
}

func (b *PostgresBackend) Save(ctx context.Context, st *domain.ChatState, expected int64) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return errors.NewStoreError("failed to encode chat state", "save", st.ChatID, err)
	}

	var res sql.Result
	if expected == 0 {
		res, err = b.db.ExecContext(ctx, insertChatStateQuery, st.ChatID, raw, st.Version)
	} else {
		res, err = b.db.ExecContext(ctx, updateChatStateQuery, st.ChatID, raw, st.Version, expected)
	}
	if err != nil {
		return errors.NewStoreError("failed to save chat state", "save", st.ChatID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("failed to read save result", "save", st.ChatID, err)
	}
	if affected == 0 {
		return errors.NewVersionConflict(st.ChatID, expected)
	}

	return nil
}

func (b *PostgresBackend) Chats(ctx context.Context) ([]int64, error) {
	rows, err := b.db.QueryContext(ctx, selectChatIDsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chatIDs []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			b.logger.Warn("Failed to scan chat id", zap.Error(err))
			continue
		}
		chatIDs = append(chatIDs, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return chatIDs, nil
}
