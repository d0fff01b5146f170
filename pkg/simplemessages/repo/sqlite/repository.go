package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tendant/simple-messages/pkg/simplemessages"
)

// Repository implements simplemessages.Repository using SQLite
type Repository struct {
	db        *sqlx.DB
	batchSize int
}

// New creates a new SQLite repository. Run Migrate on db first.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, batchSize: simplemessages.DefaultListBatchSize}
}

type submissionRow struct {
	ID           string         `db:"id"`
	DisplayName  string         `db:"display_name"`
	ContactEmail string         `db:"contact_email"`
	MessageBody  string         `db:"message_body"`
	MediaRef     sql.NullString `db:"media_ref"`
	Status       string         `db:"status"`
	CreatedAt    int64          `db:"created_at"`

	MediaStorageBackend sql.NullString `db:"media_storage_backend"`
	MediaObjectKey      sql.NullString `db:"media_object_key"`
	MediaFileName       sql.NullString `db:"media_file_name"`
	MediaMimeType       sql.NullString `db:"media_mime_type"`
	MediaSizeBytes      sql.NullInt64  `db:"media_size_bytes"`
	MediaCreatedAt      sql.NullInt64  `db:"media_created_at"`
}

type mediaRow struct {
	Ref            string `db:"ref"`
	SubmissionID   string `db:"submission_id"`
	StorageBackend string `db:"storage_backend"`
	ObjectKey      string `db:"object_key"`
	FileName       string `db:"file_name"`
	MimeType       string `db:"mime_type"`
	SizeBytes      int64  `db:"size_bytes"`
	CreatedAt      int64  `db:"created_at"`
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func (row submissionRow) toSubmission() (*simplemessages.Submission, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid submission id %q: %w", row.ID, err)
	}
	s := &simplemessages.Submission{
		ID:           id,
		DisplayName:  row.DisplayName,
		ContactEmail: row.ContactEmail,
		MessageBody:  row.MessageBody,
		Status:       simplemessages.SubmissionStatus(row.Status),
		CreatedAt:    fromMicros(row.CreatedAt),
	}
	if row.MediaRef.Valid {
		ref := row.MediaRef.String
		s.MediaRef = &ref
		if row.MediaObjectKey.Valid {
			s.Media = &simplemessages.MediaAsset{
				Ref:            ref,
				SubmissionID:   id,
				StorageBackend: row.MediaStorageBackend.String,
				ObjectKey:      row.MediaObjectKey.String,
				FileName:       row.MediaFileName.String,
				MimeType:       row.MediaMimeType.String,
				SizeBytes:      row.MediaSizeBytes.Int64,
				CreatedAt:      fromMicros(row.MediaCreatedAt.Int64),
			}
		}
	}
	return s, nil
}

// Submission operations

func (r *Repository) CreateSubmission(ctx context.Context, submission *simplemessages.Submission) error {
	if submission.HasMedia() && (submission.Media == nil || submission.Media.Ref != *submission.MediaRef) {
		return fmt.Errorf("media record for ref %s is missing", *submission.MediaRef)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO submission (id, display_name, contact_email, message_body, media_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		submission.ID.String(), submission.DisplayName, submission.ContactEmail,
		submission.MessageBody, submission.MediaRef, string(submission.Status), toMicros(submission.CreatedAt))
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}

	if m := submission.Media; m != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO media_asset (ref, submission_id, storage_backend, object_key, file_name, mime_type, size_bytes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.Ref, submission.ID.String(), m.StorageBackend, m.ObjectKey, m.FileName,
			m.MimeType, m.SizeBytes, toMicros(m.CreatedAt))
		if err != nil {
			return fmt.Errorf("create media asset: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create submission: %w", err)
	}
	return nil
}

const selectSubmission = `
	SELECT s.id, s.display_name, s.contact_email, s.message_body, s.media_ref,
	       s.status, s.created_at,
	       m.storage_backend AS media_storage_backend,
	       m.object_key      AS media_object_key,
	       m.file_name       AS media_file_name,
	       m.mime_type       AS media_mime_type,
	       m.size_bytes      AS media_size_bytes,
	       m.created_at      AS media_created_at
	FROM submission s
	LEFT JOIN media_asset m ON m.ref = s.media_ref`

func (r *Repository) GetSubmission(ctx context.Context, id uuid.UUID) (*simplemessages.Submission, error) {
	var row submissionRow
	err := r.db.GetContext(ctx, &row, selectSubmission+` WHERE s.id = $1`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simplemessages.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return row.toSubmission()
}

func (r *Repository) GetMediaAsset(ctx context.Context, ref string) (*simplemessages.MediaAsset, error) {
	var row mediaRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM media_asset WHERE ref = $1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, simplemessages.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media asset: %w", err)
	}

	submissionID, err := uuid.Parse(row.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("invalid submission id %q: %w", row.SubmissionID, err)
	}
	return &simplemessages.MediaAsset{
		Ref:            row.Ref,
		SubmissionID:   submissionID,
		StorageBackend: row.StorageBackend,
		ObjectKey:      row.ObjectKey,
		FileName:       row.FileName,
		MimeType:       row.MimeType,
		SizeBytes:      row.SizeBytes,
		CreatedAt:      fromMicros(row.CreatedAt),
	}, nil
}

func (r *Repository) ListPublished(ctx context.Context, params simplemessages.ListPublishedParams) iter.Seq2[*simplemessages.Submission, error] {
	return simplemessages.ListInBatches(ctx, params, r.batchSize, r.listPage)
}

func (r *Repository) listPage(ctx context.Context, after *simplemessages.Cursor, limit int) ([]*simplemessages.Submission, error) {
	var rows []submissionRow
	var err error
	published := string(simplemessages.SubmissionStatusPublished)

	// Canonical lowercase UUID text sorts like the UUID bytes.
	if after == nil {
		err = r.db.SelectContext(ctx, &rows, selectSubmission+`
			WHERE s.status = $1
			ORDER BY s.created_at DESC, s.id DESC
			LIMIT $2`, published, limit)
	} else {
		at := toMicros(after.CreatedAt)
		err = r.db.SelectContext(ctx, &rows, selectSubmission+`
			WHERE s.status = $1
			  AND (s.created_at < $2 OR (s.created_at = $2 AND s.id < $3))
			ORDER BY s.created_at DESC, s.id DESC
			LIMIT $4`, published, at, after.ID.String(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list published submissions: %w", err)
	}

	page := make([]*simplemessages.Submission, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSubmission()
		if err != nil {
			return nil, err
		}
		page = append(page, s)
	}
	return page, nil
}
