package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

// DBTX is an interface that allows us to use either a connection pool, a
// single connection or an outer transaction
type DBTX interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simplemessages.Repository using PostgreSQL
type Repository struct {
	db        DBTX
	batchSize int
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db, batchSize: simplemessages.DefaultListBatchSize}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "media") {
				return fmt.Errorf("media already exists: %s", pgErr.ConstraintName)
			}
			if strings.Contains(pgErr.ConstraintName, "submission") {
				return fmt.Errorf("submission already exists: %s", pgErr.ConstraintName)
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("constraint %s violated", pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Submission operations

func (r *Repository) CreateSubmission(ctx context.Context, submission *simplemessages.Submission) error {
	if submission.HasMedia() && (submission.Media == nil || submission.Media.Ref != *submission.MediaRef) {
		return fmt.Errorf("media record for ref %s is missing", *submission.MediaRef)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("begin create submission", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	_, err = tx.Exec(ctx, `
		INSERT INTO submission (
			id, display_name, contact_email, message_body, media_ref, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		submission.ID, submission.DisplayName, submission.ContactEmail,
		submission.MessageBody, submission.MediaRef, string(submission.Status), submission.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create submission", err)
	}

	if m := submission.Media; m != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO media_asset (
				ref, submission_id, storage_backend, object_key, file_name,
				mime_type, size_bytes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.Ref, submission.ID, m.StorageBackend, m.ObjectKey, m.FileName,
			m.MimeType, m.SizeBytes, m.CreatedAt)
		if err != nil {
			return r.handlePostgresError("create media asset", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return r.handlePostgresError("commit create submission", err)
	}
	return nil
}

const selectSubmission = `
	SELECT s.id, s.display_name, s.contact_email, s.message_body, s.media_ref,
	       s.status, s.created_at,
	       m.ref, m.storage_backend, m.object_key, m.file_name, m.mime_type,
	       m.size_bytes, m.created_at
	FROM submission s
	LEFT JOIN media_asset m ON m.ref = s.media_ref`

func scanSubmission(row pgx.Row) (*simplemessages.Submission, error) {
	var (
		s      simplemessages.Submission
		status string

		ref, backend, objectKey, fileName, mimeType *string
		sizeBytes                                   *int64
		mediaCreatedAt                              *time.Time
	)
	err := row.Scan(
		&s.ID, &s.DisplayName, &s.ContactEmail, &s.MessageBody, &s.MediaRef,
		&status, &s.CreatedAt,
		&ref, &backend, &objectKey, &fileName, &mimeType, &sizeBytes, &mediaCreatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = simplemessages.SubmissionStatus(status)
	s.CreatedAt = s.CreatedAt.UTC()

	if ref != nil {
		s.Media = &simplemessages.MediaAsset{
			Ref:            *ref,
			SubmissionID:   s.ID,
			StorageBackend: *backend,
			ObjectKey:      *objectKey,
			FileName:       *fileName,
			MimeType:       *mimeType,
			SizeBytes:      *sizeBytes,
			CreatedAt:      mediaCreatedAt.UTC(),
		}
	}
	return &s, nil
}

func (r *Repository) GetSubmission(ctx context.Context, id uuid.UUID) (*simplemessages.Submission, error) {
	s, err := scanSubmission(r.db.QueryRow(ctx, selectSubmission+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemessages.ErrSubmissionNotFound
		}
		return nil, r.handlePostgresError("get submission", err)
	}
	return s, nil
}

func (r *Repository) GetMediaAsset(ctx context.Context, ref string) (*simplemessages.MediaAsset, error) {
	query := `
		SELECT ref, submission_id, storage_backend, object_key, file_name,
		       mime_type, size_bytes, created_at
		FROM media_asset WHERE ref = $1`

	var m simplemessages.MediaAsset
	err := r.db.QueryRow(ctx, query, ref).Scan(
		&m.Ref, &m.SubmissionID, &m.StorageBackend, &m.ObjectKey, &m.FileName,
		&m.MimeType, &m.SizeBytes, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simplemessages.ErrMediaNotFound
		}
		return nil, r.handlePostgresError("get media asset", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (r *Repository) ListPublished(ctx context.Context, params simplemessages.ListPublishedParams) iter.Seq2[*simplemessages.Submission, error] {
	return simplemessages.ListInBatches(ctx, params, r.batchSize, r.listPage)
}

func (r *Repository) listPage(ctx context.Context, after *simplemessages.Cursor, limit int) ([]*simplemessages.Submission, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.Query(ctx, selectSubmission+`
			WHERE s.status = $1
			ORDER BY s.created_at DESC, s.id DESC
			LIMIT $2`,
			string(simplemessages.SubmissionStatusPublished), limit)
	} else {
		rows, err = r.db.Query(ctx, selectSubmission+`
			WHERE s.status = $1 AND (s.created_at, s.id) < ($2, $3)
			ORDER BY s.created_at DESC, s.id DESC
			LIMIT $4`,
			string(simplemessages.SubmissionStatusPublished), after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, r.handlePostgresError("list published submissions", err)
	}
	defer rows.Close()

	page := make([]*simplemessages.Submission, 0, limit)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan submission", err)
		}
		page = append(page, s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list published submissions", err)
	}
	return page, nil
}
