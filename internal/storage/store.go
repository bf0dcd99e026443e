package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/observability"
)

// Store provides all persistence operations.
type Store struct {
	db     *sql.DB
	driver string
	log    *observability.Logger
}

// Open connects to the configured database and ensures the schema exists.
func Open(cfg config.DatabaseConfig, log *observability.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.SQLite.Path + "?_foreign_keys=on"
		if cfg.SQLite.JournalMode != "" {
			dsn += "&_journal_mode=" + cfg.SQLite.JournalMode
		}
		db, err = sql.Open("sqlite3", dsn)
		if err == nil && cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err == nil {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewStore(db, cfg.Driver, log)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing connection. Used by integration tests.
func NewStore(db *sql.DB, driver string, log *observability.Logger) *Store {
	return &Store{db: db, driver: driver, log: log}
}

// Migrate creates the schema if needed.
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == "postgres" {
		schema = postgresSchema
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveExtraction persists a document and all of its extracted content in a
// single transaction, so retrieval either sees the whole document or none
// of it. Heading blocks and image descriptions are additionally mirrored
// into key_values for field-style lookup.
func (s *Store) SaveExtraction(ctx context.Context, doc *Document, blocks []ContentBlock, keyValues []KeyValuePair, images []ImageRecord) error {
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, detected_type, language, total_pages, summary, status, processing_seconds, metadata, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID.String(), doc.Filename, doc.DetectedType, doc.Language,
		doc.TotalPages, doc.Summary, doc.Status, doc.ProcessingSeconds, doc.Metadata, doc.IngestedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for _, b := range blocks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO content_blocks (document_id, block_id, block_type, page, region, content, confidence, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			doc.ID.String(), b.BlockID, b.Type, b.Page, b.Region, b.Content, b.Confidence, b.Embedding)
		if err != nil {
			return fmt.Errorf("insert block %s: %w", b.BlockID, err)
		}
	}

	mirrored := keyValues
	for _, b := range blocks {
		if isHeadingType(b.Type) {
			mirrored = append(mirrored, KeyValuePair{
				Key:   b.Type,
				Value: b.Content,
				Page:  b.Page,
			})
		}
	}
	for _, img := range images {
		if img.Description != "" {
			key := "image"
			if img.Type != "" {
				key = "image:" + img.Type
			}
			mirrored = append(mirrored, KeyValuePair{
				Key:   key,
				Value: img.Description,
				Page:  img.Page,
			})
		}
	}

	for _, kv := range mirrored {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO key_values (document_id, key, value, page) VALUES ($1, $2, $3, $4)`,
			doc.ID.String(), kv.Key, kv.Value, kv.Page)
		if err != nil {
			return fmt.Errorf("insert key_value %q: %w", kv.Key, err)
		}
	}

	for _, img := range images {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO images (document_id, image_id, image_type, page, region, description, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			doc.ID.String(), img.ImageID, img.Type, img.Page, img.Region, img.Description, img.Embedding)
		if err != nil {
			return fmt.Errorf("insert image %s: %w", img.ImageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit extraction: %w", err)
	}
	return nil
}

func isHeadingType(blockType string) bool {
	switch blockType {
	case "title", "header", "section_title":
		return true
	}
	return false
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, detected_type, language, total_pages, summary, status, processing_seconds, metadata, ingested_at
		 FROM documents WHERE id = $1`, id.String())
	return scanDocument(row)
}

// GetDocumentDetail fetches a document with all extracted content.
func (s *Store) GetDocumentDetail(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &DocumentDetail{Document: *doc}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, block_id, block_type, page, region, content, confidence
		 FROM content_blocks WHERE document_id = $1 ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b := ContentBlock{DocumentID: id}
		if err := rows.Scan(&b.Seq, &b.BlockID, &b.Type, &b.Page, &b.Region, &b.Content, &b.Confidence); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		detail.Blocks = append(detail.Blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kvRows, err := s.db.QueryContext(ctx,
		`SELECT seq, key, value, page FROM key_values WHERE document_id = $1 ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query key_values: %w", err)
	}
	defer kvRows.Close()
	for kvRows.Next() {
		kv := KeyValuePair{DocumentID: id}
		if err := kvRows.Scan(&kv.Seq, &kv.Key, &kv.Value, &kv.Page); err != nil {
			return nil, fmt.Errorf("scan key_value: %w", err)
		}
		detail.KeyValues = append(detail.KeyValues, kv)
	}
	if err := kvRows.Err(); err != nil {
		return nil, err
	}

	imgRows, err := s.db.QueryContext(ctx,
		`SELECT seq, image_id, image_type, page, region, description
		 FROM images WHERE document_id = $1 ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer imgRows.Close()
	for imgRows.Next() {
		img := ImageRecord{DocumentID: id}
		if err := imgRows.Scan(&img.Seq, &img.ImageID, &img.Type, &img.Page, &img.Region, &img.Description); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		detail.Images = append(detail.Images, img)
	}
	if err := imgRows.Err(); err != nil {
		return nil, err
	}

	return detail, nil
}

// ListDocuments returns the most recently ingested documents.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, detected_type, language, total_pages, summary, status, processing_seconds, metadata, ingested_at
		 FROM documents ORDER BY ingested_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its content. Returns ErrNotFound
// when the document does not exist.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Explicit child deletes keep behavior identical whether or not the
	// driver enforces the cascade.
	for _, table := range []string{"content_blocks", "key_values", "images"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, table), id.String()); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Candidates returns every embedded record, optionally restricted to the
// given documents. An empty filter means all documents.
func (s *Store) Candidates(ctx context.Context, documentIDs []uuid.UUID) ([]Candidate, error) {
	filter, args := candidateFilter(documentIDs)

	var candidates []Candidate

	blockQuery := `SELECT b.seq, b.document_id, d.filename, b.block_id, b.block_type, b.page, b.region, b.content, b.embedding, d.ingested_at
		 FROM content_blocks b JOIN documents d ON d.id = b.document_id
		 WHERE b.embedding IS NOT NULL` + strings.ReplaceAll(filter, "%col%", "b.document_id") + ` ORDER BY b.seq`
	rows, err := s.db.QueryContext(ctx, blockQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query block candidates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c := Candidate{Kind: "block"}
		var docID string
		if err := rows.Scan(&c.Seq, &docID, &c.Filename, &c.RecordID, &c.BlockType, &c.Page, &c.Region, &c.Content, &c.Embedding, &c.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan block candidate: %w", err)
		}
		if c.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("parse document id %q: %w", docID, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	imageQuery := `SELECT i.seq, i.document_id, d.filename, i.image_id, i.page, i.region, i.description, i.embedding, d.ingested_at
		 FROM images i JOIN documents d ON d.id = i.document_id
		 WHERE i.embedding IS NOT NULL` + strings.ReplaceAll(filter, "%col%", "i.document_id") + ` ORDER BY i.seq`
	imgRows, err := s.db.QueryContext(ctx, imageQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query image candidates: %w", err)
	}
	defer imgRows.Close()
	for imgRows.Next() {
		c := Candidate{Kind: "image", BlockType: "image"}
		var docID string
		if err := imgRows.Scan(&c.Seq, &docID, &c.Filename, &c.RecordID, &c.Page, &c.Region, &c.Content, &c.Embedding, &c.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan image candidate: %w", err)
		}
		if c.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("parse document id %q: %w", docID, err)
		}
		candidates = append(candidates, c)
	}
	if err := imgRows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// candidateFilter builds an optional IN clause. %col% is substituted with
// the qualified column name by the caller.
func candidateFilter(documentIDs []uuid.UUID) (string, []any) {
	if len(documentIDs) == 0 {
		return "", nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}
	return " AND %col% IN (" + strings.Join(placeholders, ", ") + ")", args
}

// SaveQueryLog records one question/answer exchange.
func (s *Store) SaveQueryLog(ctx context.Context, entry *QueryLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	docIDs, err := marshalOrNil(entry.DocumentIDs)
	if err != nil {
		return err
	}
	matched, err := marshalOrNil(entry.MatchedIDs)
	if err != nil {
		return err
	}
	sims, err := marshalOrNil(entry.Similarities)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO query_logs (id, question, answer, document_ids, matched_ids, similarities, latency_ms, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID.String(), entry.Question, entry.Answer, docIDs, matched, sims,
		entry.LatencyMS, entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// ListQueryLogs returns recent query logs, newest first.
func (s *Store) ListQueryLogs(ctx context.Context, limit int) ([]QueryLog, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, document_ids, matched_ids, similarities, latency_ms, status, created_at
		 FROM query_logs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	logs := make([]QueryLog, 0, limit)
	for rows.Next() {
		var (
			entry   QueryLog
			rawID   string
			docIDs  sql.NullString
			matched sql.NullString
			sims    sql.NullString
		)
		if err := rows.Scan(&rawID, &entry.Question, &entry.Answer, &docIDs, &matched, &sims,
			&entry.LatencyMS, &entry.Status, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan query log: %w", err)
		}
		if entry.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse query log id: %w", err)
		}
		if err := unmarshalIfSet(docIDs, &entry.DocumentIDs); err != nil {
			return nil, err
		}
		if err := unmarshalIfSet(matched, &entry.MatchedIDs); err != nil {
			return nil, err
		}
		if err := unmarshalIfSet(sims, &entry.Similarities); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func marshalOrNil(v any) (any, error) {
	switch s := v.(type) {
	case []string:
		if len(s) == 0 {
			return nil, nil
		}
	case []float64:
		if len(s) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal query log field: %w", err)
	}
	return string(data), nil
}

func unmarshalIfSet[T any](src sql.NullString, dst *T) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(src.String), dst); err != nil {
		return fmt.Errorf("unmarshal query log field: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc   Document
		rawID string
	)
	err := row.Scan(&rawID, &doc.Filename, &doc.DetectedType, &doc.Language,
		&doc.TotalPages, &doc.Summary, &doc.Status, &doc.ProcessingSeconds,
		&doc.Metadata, &doc.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if doc.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse document id: %w", err)
	}
	return &doc, nil
}
