package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gigchat/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT,
			role TEXT NOT NULL DEFAULT 'user',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			admin_id INTEGER,
			status TEXT NOT NULL DEFAULT 'open',
			subject TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS catalog_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			unit TEXT
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser creates a new user and sets its ID. A preset ID is kept.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullID(user.ID), user.Name, nullString(user.Email), string(user.Role), user.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var user domain.User
	var email sql.NullString
	var role string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = ?`,
		userID).Scan(&user.ID, &user.Name, &email, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	user.Role = domain.Role(role)
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// CreateConversation creates a new conversation and sets its ID. A preset ID is kept.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conversation *domain.Conversation) error {
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = s.now()
	}
	if conversation.Status == "" {
		conversation.Status = domain.ConversationStatusOpen
	}
	var adminID sql.NullInt64
	if conversation.HasAdmin() {
		adminID = sql.NullInt64{Int64: conversation.AdminID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, admin_id, status, subject, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		nullID(conversation.ID), conversation.UserID, adminID, string(conversation.Status), nullString(conversation.Subject), conversation.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	conversation.ID, err = res.LastInsertId()
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	var adminID sql.NullInt64
	var subject sql.NullString
	var status string
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, admin_id, status, subject, created_at FROM conversations WHERE id = ?`,
		conversationID).Scan(&c.ID, &c.UserID, &adminID, &status, &subject, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.AdminID = adminID.Int64
	c.Subject = subject.String
	c.Status = domain.ConversationStatus(status)
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}

// CreateChatMessage persists a message, assigning its ID and timestamp.
// The timestamp never precedes the conversation's latest message, so history
// stays ordered even if the wall clock steps backwards.
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, message *domain.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var latest int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(created_at), 0) FROM chat_messages WHERE conversation_id = ?`,
		message.ConversationID).Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest timestamp: %w", err)
	}
	ts := s.now().UnixMilli()
	if ts < latest {
		ts = latest
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (conversation_id, sender, content, created_at) VALUES (?, ?, ?, ?)`,
		message.ConversationID, message.Sender, message.Content, ts)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	message.ID = id
	message.CreatedAt = time.UnixMilli(ts)
	return nil
}

// GetConversationMessages retrieves the latest messages of a conversation, oldest first.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, conversationID int64, limit int) ([]domain.ChatMessage, error) {
	query := `SELECT id, conversation_id, sender, content, created_at FROM chat_messages
		WHERE conversation_id = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query = `SELECT id, conversation_id, sender, content, created_at FROM (` + query + `) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var msg domain.ChatMessage
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CreateCatalogItem creates a catalog entry and sets its ID.
func (s *SQLiteStore) CreateCatalogItem(ctx context.Context, item *domain.CatalogItem) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_items (category, name, price_cents, unit) VALUES (?, ?, ?, ?)`,
		item.Category, item.Name, item.PriceCents, nullString(item.Unit))
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

// ListCatalog returns all catalog items grouped by category.
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, name, price_cents, unit FROM catalog_items ORDER BY category, price_cents, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		var item domain.CatalogItem
		var unit sql.NullString
		if err := rows.Scan(&item.ID, &item.Category, &item.Name, &item.PriceCents, &unit); err != nil {
			return nil, err
		}
		item.Unit = unit.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
