package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/specterhq/convstore/internal/storage"
	"github.com/specterhq/convstore/pkg/types"
)

// CollectionStore implements storage.CollectionStore on SQLite.
type CollectionStore struct {
	db *sql.DB
}

var _ storage.CollectionStore = (*CollectionStore)(nil)

const collectionColumns = `id, name, description, created_at, updated_at,
	chunk_size, chunk_overlap, is_template, max_size_mb`

// Create inserts a new collection, applying chunking defaults.
func (s *CollectionStore) Create(ctx context.Context, coll *types.Collection) error {
	if coll == nil || coll.Name == "" {
		return fmt.Errorf("%w: collection name is required", storage.ErrInvalidInput)
	}
	if coll.ID == "" {
		coll.ID = uuid.New().String()
	}
	if coll.ChunkSize <= 0 {
		coll.ChunkSize = types.DefaultChunkSize
	}
	if coll.ChunkOverlap <= 0 {
		coll.ChunkOverlap = types.DefaultChunkOverlap
	}
	if coll.MaxSizeMB <= 0 {
		coll.MaxSizeMB = types.DefaultMaxSizeMB
	}
	now := time.Now().UTC()
	if coll.CreatedAt.IsZero() {
		coll.CreatedAt = now
	}
	if coll.UpdatedAt.IsZero() {
		coll.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coll.ID, coll.Name, nullableString(coll.Description),
		coll.CreatedAt, coll.UpdatedAt,
		coll.ChunkSize, coll.ChunkOverlap, coll.IsTemplate, coll.MaxSizeMB,
	)
	return wrapConstraint(err, "create collection")
}

// Get retrieves a collection by ID.
func (s *CollectionStore) Get(ctx context.Context, id string) (*types.Collection, error) {
	return s.getBy(ctx, "id", id)
}

// GetByName retrieves a collection by its unique name.
func (s *CollectionStore) GetByName(ctx context.Context, name string) (*types.Collection, error) {
	return s.getBy(ctx, "name", name)
}

func (s *CollectionStore) getBy(ctx context.Context, column, value string) (*types.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+collectionColumns+`
		FROM collections WHERE `+column+` = ?`, value)

	coll, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: collection %s=%s", storage.ErrNotFound, column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get collection: %w", err)
	}
	return coll, nil
}

// List returns all collections ordered by name.
func (s *CollectionStore) List(ctx context.Context) ([]types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+collectionColumns+`
		FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list collections: %w", err)
	}
	defer rows.Close()

	var colls []types.Collection
	for rows.Next() {
		coll, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan collection: %w", err)
		}
		colls = append(colls, *coll)
	}
	return colls, rows.Err()
}

// Update rewrites a collection's mutable fields and bumps updated_at.
func (s *CollectionStore) Update(ctx context.Context, coll *types.Collection) error {
	if coll == nil || coll.ID == "" {
		return fmt.Errorf("%w: collection ID is required", storage.ErrInvalidInput)
	}
	coll.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE collections
		SET name = ?, description = ?, updated_at = ?,
		    chunk_size = ?, chunk_overlap = ?, is_template = ?, max_size_mb = ?
		WHERE id = ?`,
		coll.Name, nullableString(coll.Description), coll.UpdatedAt,
		coll.ChunkSize, coll.ChunkOverlap, coll.IsTemplate, coll.MaxSizeMB, coll.ID,
	)
	if err != nil {
		return wrapConstraint(err, "update collection")
	}
	return requireRow(res, "collection "+coll.ID)
}

// Delete removes a collection. Its files, tags, and conversation
// associations cascade; the conversations themselves are untouched.
func (s *CollectionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete collection: %w", err)
	}
	return requireRow(res, "collection "+id)
}

// AddFile records a file in a collection. Duplicate checksums are
// accepted: the digest is for integrity checks, not deduplication.
func (s *CollectionStore) AddFile(ctx context.Context, file *types.CollectionFile) error {
	if file == nil || file.CollectionID == "" {
		return fmt.Errorf("%w: file collection ID is required", storage.ErrInvalidInput)
	}
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.AddedAt.IsZero() {
		file.AddedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_files
			(id, collection_id, file_path, file_name, file_size, file_type, added_at, checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.CollectionID, file.FilePath, file.FileName,
		file.FileSize, nullableString(file.FileType), file.AddedAt, file.Checksum,
	)
	return wrapConstraint(err, "add collection file")
}

// ListFiles returns a collection's files ordered by file name.
func (s *CollectionStore) ListFiles(ctx context.Context, collectionID string) ([]types.CollectionFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection_id, file_path, file_name, file_size, file_type, added_at, checksum
		FROM collection_files WHERE collection_id = ?
		ORDER BY file_name`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list collection files: %w", err)
	}
	defer rows.Close()

	var files []types.CollectionFile
	for rows.Next() {
		var (
			f        types.CollectionFile
			fileType sql.NullString
		)
		err := rows.Scan(&f.ID, &f.CollectionID, &f.FilePath, &f.FileName,
			&f.FileSize, &fileType, &f.AddedAt, &f.Checksum)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan collection file: %w", err)
		}
		f.FileType = fileType.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// RemoveFile deletes one file row from a collection.
func (s *CollectionStore) RemoveFile(ctx context.Context, fileID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collection_files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to remove collection file: %w", err)
	}
	return requireRow(res, "collection file "+fileID)
}

// AddTag attaches a label to a collection. Adding the same label twice is
// a no-op.
func (s *CollectionStore) AddTag(ctx context.Context, collectionID, tag string) error {
	if tag == "" {
		return fmt.Errorf("%w: tag is empty", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO collection_tags (collection_id, tag) VALUES (?, ?)`,
		collectionID, tag)
	return wrapConstraint(err, "add collection tag")
}

// RemoveTag detaches a label from a collection.
func (s *CollectionStore) RemoveTag(ctx context.Context, collectionID, tag string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM collection_tags WHERE collection_id = ? AND tag = ?`,
		collectionID, tag)
	if err != nil {
		return fmt.Errorf("sqlite: failed to remove collection tag: %w", err)
	}
	return nil
}

// ListTags returns a collection's labels in sorted order.
func (s *CollectionStore) ListTags(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag FROM collection_tags WHERE collection_id = ? ORDER BY tag`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list collection tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan collection tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Attach associates a collection with a conversation. Attaching twice is
// a no-op.
func (s *CollectionStore) Attach(ctx context.Context, conversationID, collectionID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_collections (conversation_id, collection_id, attached_at)
		VALUES (?, ?, ?)`, conversationID, collectionID, time.Now().UTC())
	return wrapConstraint(err, "attach collection")
}

// Detach removes the association; both sides survive.
func (s *CollectionStore) Detach(ctx context.Context, conversationID, collectionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_collections
		WHERE conversation_id = ? AND collection_id = ?`, conversationID, collectionID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to detach collection: %w", err)
	}
	return nil
}

// ListForConversation returns the collections attached to a conversation.
func (s *CollectionStore) ListForConversation(ctx context.Context, conversationID string) ([]types.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.created_at, c.updated_at,
		       c.chunk_size, c.chunk_overlap, c.is_template, c.max_size_mb
		FROM collections c
		JOIN conversation_collections cc ON cc.collection_id = c.id
		WHERE cc.conversation_id = ?
		ORDER BY c.name`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list attached collections: %w", err)
	}
	defer rows.Close()

	var colls []types.Collection
	for rows.Next() {
		coll, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan collection: %w", err)
		}
		colls = append(colls, *coll)
	}
	return colls, rows.Err()
}

// ListConversations returns the IDs of conversations a collection is
// attached to.
func (s *CollectionStore) ListConversations(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_collections
		WHERE collection_id = ? ORDER BY attached_at`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list attached conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan conversation ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCollection(row scanner) (*types.Collection, error) {
	var (
		coll types.Collection
		desc sql.NullString
	)
	err := row.Scan(&coll.ID, &coll.Name, &desc, &coll.CreatedAt, &coll.UpdatedAt,
		&coll.ChunkSize, &coll.ChunkOverlap, &coll.IsTemplate, &coll.MaxSizeMB)
	if err != nil {
		return nil, err
	}
	coll.Description = desc.String
	return &coll, nil
}
