package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite chat store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: seq assignment reads MAX(seq) and inserts in a single
	// statement, and WAL snapshot upgrades would otherwise fail under load.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_conversations (
		  conversation_id TEXT PRIMARY KEY,
		  session_id TEXT NOT NULL DEFAULT '',
		  customer_name TEXT NOT NULL DEFAULT '',
		  started_at_ms INTEGER NOT NULL,
		  summary_json TEXT NOT NULL DEFAULT '{}',
		  last_message TEXT NOT NULL DEFAULT '',
		  updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_conversations_by_updated
		  ON chat_conversations(updated_at_ms DESC, conversation_id ASC);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
		  message_id TEXT PRIMARY KEY,
		  conversation_id TEXT NOT NULL,
		  session_id TEXT NOT NULL DEFAULT '',
		  role TEXT NOT NULL,
		  content TEXT NOT NULL,
		  seq INTEGER NOT NULL,
		  created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_by_conversation
		  ON chat_messages(conversation_id, seq);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_by_session
		  ON chat_messages(session_id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite chat store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, c Conversation) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c = normalizeConversation(c, nowMs())
	if c.ConversationID == "" {
		return errors.New("sqlite chat store: conversation_id is empty")
	}
	summary, err := encodeSummary(c.Summary)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_conversations (
			conversation_id, session_id, customer_name, started_at_ms,
			summary_json, last_message, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			session_id = CASE
				WHEN excluded.session_id <> '' THEN excluded.session_id
				ELSE chat_conversations.session_id
			END,
			customer_name = CASE
				WHEN excluded.customer_name <> '' THEN excluded.customer_name
				ELSE chat_conversations.customer_name
			END,
			started_at_ms = CASE
				WHEN chat_conversations.started_at_ms > 0 THEN chat_conversations.started_at_ms
				ELSE excluded.started_at_ms
			END,
			summary_json = json_patch(chat_conversations.summary_json, excluded.summary_json),
			last_message = CASE
				WHEN excluded.last_message <> '' THEN excluded.last_message
				ELSE chat_conversations.last_message
			END,
			updated_at_ms = CASE
				WHEN excluded.updated_at_ms > chat_conversations.updated_at_ms THEN excluded.updated_at_ms
				ELSE chat_conversations.updated_at_ms
			END
	`, c.ConversationID, c.SessionID, c.CustomerName, c.StartedAtMs, summary, c.LastMessage, c.UpdatedAtMs)
	if err != nil {
		return errors.Wrap(err, "sqlite chat store: upsert conversation")
	}
	return nil
}

func (s *SQLiteStore) PatchConversation(ctx context.Context, conversationID string, patch ConversationPatch) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return errors.New("sqlite chat store: conversation_id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	summary, err := encodeSummary(patch.Summary)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE chat_conversations SET
			customer_name = CASE WHEN ? <> '' THEN ? ELSE customer_name END,
			summary_json = json_patch(summary_json, ?),
			last_message = CASE WHEN ? <> '' THEN ? ELSE last_message END,
			updated_at_ms = ?
		WHERE conversation_id = ?
	`,
		strings.TrimSpace(patch.CustomerName), strings.TrimSpace(patch.CustomerName),
		summary,
		chat.Truncate(patch.LastMessage, LastMessageLimit), chat.Truncate(patch.LastMessage, LastMessageLimit),
		nowMs(),
		conversationID,
	)
	if err != nil {
		return errors.Wrap(err, "sqlite chat store: patch conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite chat store: patch conversation rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrConversationNotFound, "sqlite chat store: patch %s", conversationID)
	}
	return nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m Message) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m, err := normalizeMessage(m, nowMs())
	if err != nil {
		return errors.Wrap(err, "sqlite chat store")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (
			message_id, conversation_id, session_id, role, content, seq, created_at_ms
		)
		SELECT ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?
		FROM chat_messages
		WHERE conversation_id = ?
		ON CONFLICT(message_id) DO NOTHING
	`, m.MessageID, m.ConversationID, m.SessionID, string(m.Role), m.Content, m.CreatedAtMs, m.ConversationID)
	if err != nil {
		return errors.Wrap(err, "sqlite chat store: insert message")
	}
	return nil
}

func (s *SQLiteStore) HasPriorMessages(ctx context.Context, sessionID, excludeMessageID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("sqlite chat store: db is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, errors.New("sqlite chat store: session_id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_messages
		WHERE session_id = ? AND message_id <> ?
		LIMIT 1
	`, sessionID, excludeMessageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "sqlite chat store: prior messages")
	}
	return true, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (Conversation, bool, error) {
	if s == nil || s.db == nil {
		return Conversation{}, false, errors.New("sqlite chat store: db is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Conversation{}, false, errors.New("sqlite chat store: conversation_id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, session_id, customer_name, started_at_ms,
		       summary_json, last_message, updated_at_ms
		FROM chat_conversations
		WHERE conversation_id = ?
	`, conversationID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, errors.Wrap(err, "sqlite chat store: get conversation")
	}
	return c, true, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit int, sinceMs int64) ([]Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite chat store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT conversation_id, session_id, customer_name, started_at_ms,
		       summary_json, last_message, updated_at_ms
		FROM chat_conversations
	`
	args := make([]any, 0, 2)
	if sinceMs > 0 {
		query += ` WHERE updated_at_ms >= ?`
		args = append(args, sinceMs)
	}
	query += ` ORDER BY updated_at_ms DESC, conversation_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: list conversations")
	}
	defer func() { _ = rows.Close() }()

	out := make([]Conversation, 0, limit)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite chat store: scan conversation")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: list conversations rows")
	}
	return out, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite chat store: db is nil")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("sqlite chat store: conversation_id is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, conversation_id, session_id, role, content, seq, created_at_ms
		FROM chat_messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: list messages")
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.SessionID, &role, &m.Content, &m.Seq, &m.CreatedAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite chat store: scan message")
		}
		m.Role = chat.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite chat store: list messages rows")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (Conversation, error) {
	var (
		c       Conversation
		summary string
	)
	if err := r.Scan(&c.ConversationID, &c.SessionID, &c.CustomerName, &c.StartedAtMs, &summary, &c.LastMessage, &c.UpdatedAtMs); err != nil {
		return Conversation{}, err
	}
	if summary != "" && summary != "{}" {
		if err := json.Unmarshal([]byte(summary), &c.Summary); err != nil {
			return Conversation{}, errors.Wrap(err, "decode summary")
		}
	}
	return c, nil
}

func encodeSummary(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "sqlite chat store: encode summary")
	}
	return string(b), nil
}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite chat store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
