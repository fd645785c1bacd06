package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/specterhq/convstore/internal/storage"
	"github.com/specterhq/convstore/pkg/types"
)

// ConversationStore implements storage.ConversationStore on SQLite.
type ConversationStore struct {
	db *sql.DB
}

var _ storage.ConversationStore = (*ConversationStore)(nil)

const conversationColumns = `id, title, status, created_at, updated_at,
	message_count, model_used, tags, metadata, category, priority, is_favorite`

// Create inserts a new conversation.
func (s *ConversationStore) Create(ctx context.Context, conv *types.Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is nil", storage.ErrInvalidInput)
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.Status == "" {
		conv.Status = types.StatusActive
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}

	tagsJSON, err := tagsColumn(conv.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode tags: %w", err)
	}
	metaJSON, err := marshalJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, string(conv.Status), conv.CreatedAt, conv.UpdatedAt,
		conv.MessageCount, nullableString(conv.ModelUsed), tagsJSON, metaJSON,
		nullableString(conv.Category), conv.Priority, conv.IsFavorite,
	)
	return wrapConstraint(err, "create conversation")
}

// Get retrieves a conversation by ID, including soft-deleted ones.
func (s *ConversationStore) Get(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get conversation: %w", err)
	}
	return conv, nil
}

// List retrieves conversations with pagination and filtering.
func (s *ConversationStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Conversation], error) {
	opts.Normalize()

	where := ""
	var args []interface{}
	and := func(clause string, clauseArgs ...interface{}) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, clauseArgs...)
	}

	if opts.Status != "" {
		and("status = ?", string(opts.Status))
	} else if !opts.IncludeDeleted {
		and("status != ?", string(types.StatusDeleted))
	}
	if opts.Category != "" {
		and("category = ?", opts.Category)
	}
	if opts.FavoritesOnly {
		and("is_favorite = 1")
	}
	if opts.SetMinPriority {
		and("priority >= ?", opts.MinPriority)
	}

	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations"+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count conversations: %w", err)
	}

	// SortBy and SortOrder are whitelisted by Normalize, safe to splice.
	query := fmt.Sprintf(`
		SELECT `+conversationColumns+`
		FROM conversations%s
		ORDER BY %s %s
		LIMIT ? OFFSET ?`, where, opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]types.Conversation, 0, opts.Limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan conversation: %w", err)
		}
		items = append(items, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate conversations: %w", err)
	}

	return &storage.PaginatedResult[types.Conversation]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Update rewrites a conversation's mutable fields and bumps updated_at.
func (s *ConversationStore) Update(ctx context.Context, conv *types.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("%w: conversation ID is required", storage.ErrInvalidInput)
	}

	tagsJSON, err := tagsColumn(conv.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode tags: %w", err)
	}
	metaJSON, err := marshalJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode metadata: %w", err)
	}
	conv.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET title = ?, status = ?, updated_at = ?, model_used = ?, tags = ?,
		    metadata = ?, category = ?, priority = ?, is_favorite = ?
		WHERE id = ?`,
		conv.Title, string(conv.Status), conv.UpdatedAt,
		nullableString(conv.ModelUsed), tagsJSON, metaJSON,
		nullableString(conv.Category), conv.Priority, conv.IsFavorite, conv.ID,
	)
	if err != nil {
		return wrapConstraint(err, "update conversation")
	}
	return requireRow(res, "conversation "+conv.ID)
}

// SetStatus moves a conversation to the given lifecycle status.
func (s *ConversationStore) SetStatus(ctx context.Context, id string, status types.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return wrapConstraint(err, "set conversation status")
	}
	return requireRow(res, "conversation "+id)
}

// Delete soft-deletes a conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	return s.SetStatus(ctx, id, types.StatusDeleted)
}

// Purge hard-deletes a conversation. Messages, summary, files, and tag
// links go with it through the schema's cascades; attached collections
// survive because the join table is the only thing referencing them.
func (s *ConversationStore) Purge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to purge conversation: %w", err)
	}
	return requireRow(res, "conversation "+id)
}

// AddMessage appends a message and bumps the owning conversation's
// message_count and updated_at in the same transaction.
func (s *ConversationStore) AddMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.ConversationID == "" {
		return fmt.Errorf("%w: message conversation ID is required", storage.ErrInvalidInput)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	metaJSON, err := marshalJSON(msg.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		msg.Timestamp, nullableInt(msg.TokenCount), metaJSON,
	)
	if err != nil {
		return wrapConstraint(err, "add message")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET message_count = message_count + 1, updated_at = ?
		WHERE id = ?`, time.Now().UTC(), msg.ConversationID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to bump message count: %w", err)
	}
	if err := requireRow(res, "conversation "+msg.ConversationID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListMessages returns a conversation's messages ordered by timestamp.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, timestamp, token_count, metadata
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// SearchMessages runs a full-text query over message content via the
// messages_fts index.
func (s *ConversationStore) SearchMessages(ctx context.Context, opts storage.SearchOptions) ([]storage.SearchHit, error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("%w: search query is empty", storage.ErrInvalidInput)
	}
	opts.Normalize()

	query := `
		SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp,
		       m.token_count, m.metadata, c.title
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?`
	args := []interface{}{opts.Query}
	if opts.ConversationID != "" {
		query += " AND m.conversation_id = ?"
		args = append(args, opts.ConversationID)
	}
	query += " ORDER BY rank LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: full-text search failed: %w", err)
	}
	defer rows.Close()

	var hits []storage.SearchHit
	for rows.Next() {
		var (
			msg        types.Message
			role       string
			tokenCount sql.NullInt64
			metaJSON   sql.NullString
			title      string
		)
		err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&msg.Timestamp, &tokenCount, &metaJSON, &title)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan search hit: %w", err)
		}
		msg.Role = types.MessageRole(role)
		msg.TokenCount = int(tokenCount.Int64)
		if err := unmarshalJSON(metaJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode message metadata: %w", err)
		}
		hits = append(hits, storage.SearchHit{Message: msg, ConversationTitle: title})
	}
	return hits, rows.Err()
}

// AddTag attaches a named tag, creating the tag row on first use.
func (s *ConversationStore) AddTag(ctx context.Context, conversationID, tagName string) error {
	if tagName == "" {
		return fmt.Errorf("%w: tag name is empty", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var tagID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, tagName).Scan(&tagID)
	if errors.Is(err, sql.ErrNoRows) {
		tagID = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tags (id, name, usage_count, created_at) VALUES (?, ?, 0, ?)`,
			tagID, tagName, time.Now().UTC())
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to resolve tag %q: %w", tagName, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_tags (conversation_id, tag_id) VALUES (?, ?)`,
		conversationID, tagID)
	if err != nil {
		return wrapConstraint(err, "attach tag")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = tx.ExecContext(ctx, `UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tagID)
		if err != nil {
			return fmt.Errorf("sqlite: failed to bump tag usage: %w", err)
		}
	}

	return tx.Commit()
}

// RemoveTag detaches a tag and decrements its usage count.
func (s *ConversationStore) RemoveTag(ctx context.Context, conversationID, tagName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_tags
		WHERE conversation_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		conversationID, tagName)
	if err != nil {
		return fmt.Errorf("sqlite: failed to detach tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = usage_count - 1
			WHERE name = ? AND usage_count > 0`, tagName)
		if err != nil {
			return fmt.Errorf("sqlite: failed to decrement tag usage: %w", err)
		}
	}

	return tx.Commit()
}

// ListTags returns the tags attached to a conversation.
func (s *ConversationStore) ListTags(ctx context.Context, conversationID string) ([]types.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.usage_count, t.created_at
		FROM tags t
		JOIN conversation_tags ct ON ct.tag_id = t.id
		WHERE ct.conversation_id = ?
		ORDER BY t.name`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []types.Tag
	for rows.Next() {
		var t types.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// SetSummary writes the conversation's summary, replacing any existing one.
func (s *ConversationStore) SetSummary(ctx context.Context, summary *types.Summary) error {
	if summary == nil || summary.ConversationID == "" {
		return fmt.Errorf("%w: summary conversation ID is required", storage.ErrInvalidInput)
	}
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}
	if summary.GeneratedAt.IsZero() {
		summary.GeneratedAt = time.Now().UTC()
	}
	topics, err := json.Marshal(summary.KeyTopics)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode key topics: %w", err)
	}
	if summary.KeyTopics == nil {
		topics = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries
			(id, conversation_id, summary, key_topics, generated_at, model_used, confidence_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			summary = excluded.summary,
			key_topics = excluded.key_topics,
			generated_at = excluded.generated_at,
			model_used = excluded.model_used,
			confidence_score = excluded.confidence_score`,
		summary.ID, summary.ConversationID, summary.Summary, string(topics),
		summary.GeneratedAt, nullableString(summary.ModelUsed), summary.ConfidenceScore,
	)
	return wrapConstraint(err, "set summary")
}

// GetSummary retrieves the conversation's summary.
func (s *ConversationStore) GetSummary(ctx context.Context, conversationID string) (*types.Summary, error) {
	var (
		sum       types.Summary
		topics    string
		modelUsed sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, summary, key_topics, generated_at, model_used, confidence_score
		FROM conversation_summaries WHERE conversation_id = ?`, conversationID).
		Scan(&sum.ID, &sum.ConversationID, &sum.Summary, &topics,
			&sum.GeneratedAt, &modelUsed, &sum.ConfidenceScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary for conversation %s", storage.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get summary: %w", err)
	}
	sum.ModelUsed = modelUsed.String
	if err := json.Unmarshal([]byte(topics), &sum.KeyTopics); err != nil {
		return nil, fmt.Errorf("sqlite: failed to decode key topics: %w", err)
	}
	return &sum, nil
}

// AttachFile records an ingested file against a conversation.
func (s *ConversationStore) AttachFile(ctx context.Context, file *types.ConversationFile) error {
	if file == nil || file.ConversationID == "" {
		return fmt.Errorf("%w: file conversation ID is required", storage.ErrInvalidInput)
	}
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.ProcessingStatus == "" {
		file.ProcessingStatus = types.FileQueued
	}
	if file.UploadTimestamp.IsZero() {
		file.UploadTimestamp = time.Now().UTC()
	}
	metaJSON, err := marshalJSON(file.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_files
			(id, conversation_id, file_id, filename, file_path, file_size, file_type,
			 upload_timestamp, processing_status, chunk_count, is_enabled, collection_tag, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.ConversationID, file.FileID, file.Filename, file.FilePath,
		file.FileSize, nullableString(file.FileType), file.UploadTimestamp,
		string(file.ProcessingStatus), file.ChunkCount, file.IsEnabled,
		nullableString(file.CollectionTag), metaJSON,
	)
	return wrapConstraint(err, "attach file")
}

// ListFiles returns the files attached to a conversation.
func (s *ConversationStore) ListFiles(ctx context.Context, conversationID string) ([]types.ConversationFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, file_id, filename, file_path, file_size, file_type,
		       upload_timestamp, processing_status, chunk_count, is_enabled, collection_tag, metadata
		FROM conversation_files WHERE conversation_id = ?
		ORDER BY upload_timestamp ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list files: %w", err)
	}
	defer rows.Close()

	var files []types.ConversationFile
	for rows.Next() {
		var (
			f             types.ConversationFile
			fileType      sql.NullString
			status        string
			collectionTag sql.NullString
			metaJSON      sql.NullString
		)
		err := rows.Scan(&f.ID, &f.ConversationID, &f.FileID, &f.Filename, &f.FilePath,
			&f.FileSize, &fileType, &f.UploadTimestamp, &status, &f.ChunkCount,
			&f.IsEnabled, &collectionTag, &metaJSON)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan file: %w", err)
		}
		f.FileType = fileType.String
		f.ProcessingStatus = types.FileProcessingStatus(status)
		f.CollectionTag = collectionTag.String
		if err := unmarshalJSON(metaJSON, &f.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode file metadata: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFileStatus advances a file's processing status and chunk count.
func (s *ConversationStore) UpdateFileStatus(ctx context.Context, fileID string, status types.FileProcessingStatus, chunkCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_files SET processing_status = ?, chunk_count = ?
		WHERE id = ?`, string(status), chunkCount, fileID)
	if err != nil {
		return wrapConstraint(err, "update file status")
	}
	return requireRow(res, "file "+fileID)
}

// Close is a no-op; the shared DB owns the connection.
func (s *ConversationStore) Close() error {
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*types.Conversation, error) {
	var (
		conv      types.Conversation
		status    string
		modelUsed sql.NullString
		tagsJSON  string
		metaJSON  sql.NullString
		category  sql.NullString
	)
	err := row.Scan(&conv.ID, &conv.Title, &status, &conv.CreatedAt, &conv.UpdatedAt,
		&conv.MessageCount, &modelUsed, &tagsJSON, &metaJSON,
		&category, &conv.Priority, &conv.IsFavorite)
	if err != nil {
		return nil, err
	}
	conv.Status = types.ConversationStatus(status)
	conv.ModelUsed = modelUsed.String
	conv.Category = category.String
	if err := json.Unmarshal([]byte(tagsJSON), &conv.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := unmarshalJSON(metaJSON, &conv.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &conv, nil
}

func scanMessage(row scanner) (*types.Message, error) {
	var (
		msg        types.Message
		role       string
		tokenCount sql.NullInt64
		metaJSON   sql.NullString
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
		&msg.Timestamp, &tokenCount, &metaJSON)
	if err != nil {
		return nil, err
	}
	msg.Role = types.MessageRole(role)
	msg.TokenCount = int(tokenCount.Int64)
	if err := unmarshalJSON(metaJSON, &msg.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &msg, nil
}

// tagsColumn encodes the inline tag list for the NOT NULL tags column;
// an empty list is stored as '[]'.
func tagsColumn(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// requireRow converts a zero-row UPDATE or DELETE into ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, what)
	}
	return nil
}
